package config

import (
	"fmt"

	"github.com/maltedev/listing-harvester/internal/models"
)

const (
	ProfileElectronics             = "electronics"
	ProfileElectronicsHierarchical = "electronics-hierarchical"

	DefaultParentFolderID = "1NqWSVrV95XdnCbZ5MCqVR-4O2JxCF3Up"

	siteBase = "https://www.q84sale.com/ar/electronics/"
)

// Profile is a named category list and the Drive folder its workbooks go to.
type Profile struct {
	Name           string
	ParentFolderID string
	Categories     []models.Category
}

func flat(slug, label string, pages int) models.Category {
	return models.Category{
		Name:      slug,
		Label:     label,
		URL:       siteBase + slug + "/{}",
		PageDepth: pages,
		Flat:      true,
	}
}

var profiles = []Profile{
	{
		Name:           ProfileElectronics,
		ParentFolderID: DefaultParentFolderID,
		Categories: []models.Category{
			flat("mobile-phones-and-accessories", "موبايلات و إكسسوارات", 3),
			flat("tablets", "تابلت / ايباد", 1),
			flat("homeoffice-appliances", "أجهزة منزلية/مكتبية", 3),
			flat("mobile-numbers", "أرقام موبايلات", 2),
			flat("audio-and-headphones", "الصوت و السماعات", 1),
			flat("laptop-and-computer", "لابتوب وكمبيوتر", 4),
			flat("smartwatches", "ساعات ذكية", 1),
			flat("smart-tv", "تلفزيونات ذكية", 2),
			flat("satellite-receiver", "ريسيفرات", 2),
			flat("wanted-devices", "مطلوب و نشتري", 1),
			flat("electronics-services", "خدمات إلكترونية", 1),
			flat("other-electronics", "أجهزة أخرى", 2),
		},
	},
	{
		Name:           ProfileElectronicsHierarchical,
		ParentFolderID: DefaultParentFolderID,
		Categories: []models.Category{
			{
				Name:           "cameras",
				Label:          "كاميرات",
				URL:            siteBase + "cameras",
				PageDepth:      1,
				OverrideDepth:  5,
				OverrideBrands: []string{"كاميرات مراقبة", "كاميرات إحترافية"},
			},
			{
				Name:           "video-games-and-consoles",
				Label:          "ألعاب الفيديو و ملحقاتها",
				URL:            siteBase + "video-games-and-consoles",
				PageDepth:      1,
				OverrideDepth:  4,
				OverrideBrands: []string{"ألعاب الفيديو", "بيع حسابات", "بلاي ستيشن وملحقاتها", "بطاقات شراء"},
			},
			{
				Name:      "devices-and-networking",
				Label:     "اجهزة و شبكات",
				URL:       siteBase + "devices-and-networking",
				PageDepth: 1,
			},
			{
				Name:      "electronics-shops",
				Label:     "محلات الإلكترونيات",
				URL:       siteBase + "electronics-shops",
				PageDepth: 1,
			},
		},
	},
}

// ProfileByName returns a copy of the named profile.
func ProfileByName(name string) (Profile, error) {
	for _, p := range profiles {
		if p.Name == name {
			cats := make([]models.Category, len(p.Categories))
			copy(cats, p.Categories)
			p.Categories = cats
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("unknown HARVEST_PROFILE %q", name)
}

// ProfileNames lists the built-in profiles.
func ProfileNames() []string {
	names := make([]string, len(profiles))
	for i, p := range profiles {
		names[i] = p.Name
	}
	return names
}

// Select keeps the named categories of p, in profile order. An empty list keeps all.
func (p Profile) Select(names []string) ([]models.Category, error) {
	if len(names) == 0 {
		return p.Categories, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []models.Category
	for _, c := range p.Categories {
		if want[c.Name] {
			out = append(out, c)
			delete(want, c.Name)
		}
	}
	for n := range want {
		return nil, fmt.Errorf("category %q not in profile %s", n, p.Name)
	}
	return out, nil
}
