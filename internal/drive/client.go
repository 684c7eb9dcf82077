package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	herrors "github.com/maltedev/listing-harvester/pkg/errors"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Client talks to Google Drive on behalf of a service account. All folders it
// sees or creates live directly under one parent folder.
type Client struct {
	svc      *gdrive.Service
	parentID string
	logger   *slog.Logger
}

func NewClient(ctx context.Context, credentialsJSON []byte, parentID string, logger *slog.Logger) (*Client, error) {
	if !json.Valid(credentialsJSON) {
		return nil, herrors.NewAuthentication("load drive credentials", fmt.Errorf("credentials are not valid JSON"))
	}

	svc, err := gdrive.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(gdrive.DriveScope),
	)
	if err != nil {
		return nil, herrors.NewAuthentication("create drive service", err)
	}

	return &Client{
		svc:      svc,
		parentID: parentID,
		logger:   logger.With("component", "drive"),
	}, nil
}

// CheckAccess fails with an authentication error when the parent folder
// cannot be read with the configured credentials.
func (c *Client) CheckAccess(ctx context.Context) error {
	f, err := c.svc.Files.Get(c.parentID).Fields("id, name").Context(ctx).Do()
	if err != nil {
		if herrors.IsTransient(err) {
			return herrors.NewTransient("check parent folder access", c.parentID, err)
		}
		return herrors.NewAuthentication("check parent folder access", err)
	}
	c.logger.Info("parent folder accessible", "folder_id", f.Id, "name", f.Name)
	return nil
}

func (c *Client) GetFolderID(ctx context.Context, name string) (string, error) {
	list, err := c.svc.Files.List().
		Q(folderQuery(name, c.parentID)).
		Spaces("drive").
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return "", c.classify("find folder", name, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func (c *Client) CreateFolder(ctx context.Context, name string) (string, error) {
	f, err := c.svc.Files.Create(&gdrive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{c.parentID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", c.classify("create folder", name, err)
	}
	c.logger.Info("created folder", "name", name, "folder_id", f.Id)
	return f.Id, nil
}

func (c *Client) UploadFile(ctx context.Context, path, folderID string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	f, err := c.svc.Files.Create(&gdrive.File{
		Name:    filepath.Base(path),
		Parents: []string{folderID},
	}).Media(file).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", c.classify("upload file", path, err)
	}
	return f.Id, nil
}

func (c *Client) classify(op, target string, err error) error {
	switch {
	case herrors.IsAuthentication(err):
		return herrors.NewAuthentication(op+" "+target, err)
	case herrors.IsTransient(err):
		return herrors.NewTransient(op, target, err)
	default:
		return fmt.Errorf("%s %s: %w", op, target, err)
	}
}

// folderQuery selects a non-trashed folder with exactly this name under parent.
func folderQuery(name, parentID string) string {
	return fmt.Sprintf("name='%s' and '%s' in parents and mimeType='%s' and trashed=false",
		escapeQuery(name), escapeQuery(parentID), folderMimeType)
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
