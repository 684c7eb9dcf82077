package scraper

import "regexp"

// Category page.
const brandAnchorSelector = ".styles_itemWrapper__MTzPB a"

// Listing page cards.
const (
	cardSelector      = ".StackedCard_card__Kvggc"
	cardTypeSelector  = ".text-6-med.text-neutral_600.styles_category__NQAci"
	cardTitleSelector = ".text-4-med.text-neutral_900.styles_title__l5TTA.undefined"
	cardTagsSelector  = ".StackedCard_tags__SsKrH"
)

// Detail page.
const (
	topDataSelector     = ".d-flex.styles_topData__Sx1GF"
	dataItemSelector    = ".d-flex.align-items-center.styles_dataWithIcon__For9u"
	dataValueSelector   = ".text-5-regular.m-text-6-med.text-neutral_600"
	viewsSelector       = dataItemSelector + " " + dataValueSelector
	idSectionSelector   = ".el-lvl-1.d-flex.align-items-center.justify-content-between.styles_sectionWrapper__v97PG"
	idTextSelector      = ".text-4-regular.m-text-5-med.text-neutral_600"
	addressSelector     = ".text-4-regular.m-text-5-med.text-neutral_600"
	imageSelector       = ".styles_img__PC9G3"
	priceSelector       = ".h3.m-h5.text-prim_4sale_500"
	boolAttrSelector    = ".styles_boolAttrs__Ce6YV .styles_boolAttr__Fkh_j div"
	specSelector        = ".styles_attrs__PX5Fs .styles_attr__BN3w_"
	specValueSelector   = ".text-4-med.m-text-5-med.text-neutral_900"
	descriptionSelector = `meta[property="og:description"], meta[name="description"]`
	submitterSelector   = ".styles_infoWrapper__v4P8_.undefined.align-items-center"
	submitterName       = ".text-4-med.m-h6.text-neutral_900"
	submitterSpans      = ".styles_memberDate__qdUsm span.text-neutral_600"
	nextDataSelector    = "script#__NEXT_DATA__"
)

// Sentinels written when the page does not show the value.
const (
	defaultPrice      = "0 KWD"
	defaultAddress    = "Not Mentioned"
	defaultAds        = "0 ads"
	defaultMembership = "membership not mentioned"
)

var (
	adIDPattern       = regexp.MustCompile(`رقم الاعلان:\s*(\d+)`)
	adIDOnlyPattern   = regexp.MustCompile(`^رقم الاعلان:\s*\d+$`)
	adsPattern        = regexp.MustCompile(`(?i)^\d+\s+(ads|ad|اعلان|إعلان|اعلانات|إعلانات)$`)
	membershipPattern = regexp.MustCompile(`(?i)^(عضو منذ|member since)\s+\D+\s+\d+$`)
)

// Words that mark the data item holding the relative publish phrase.
var relativeDateMarkers = []string{"منذ", "ساعة", "يوم", "دقيقة", "شهر", "ago"}
