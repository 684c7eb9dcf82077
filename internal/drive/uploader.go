// Package drive uploads exported workbooks into dated folders on Google Drive.
package drive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maltedev/listing-harvester/internal/retry"
	herrors "github.com/maltedev/listing-harvester/pkg/errors"
)

type FolderStore interface {
	CheckAccess(ctx context.Context) error
	GetFolderID(ctx context.Context, name string) (string, error)
	CreateFolder(ctx context.Context, name string) (string, error)
	UploadFile(ctx context.Context, path, folderID string) (string, error)
}

// DefaultPolicy retries network-class failures three times with exponential
// backoff between 4 and 10 seconds.
func DefaultPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		BackoffBase: 4 * time.Second,
		BackoffCap:  10 * time.Second,
		Retryable:   herrors.IsTransient,
	}
}

// Uploader puts files into per-date folders, creating a folder the first time
// it is needed and remembering its id for the rest of the run.
type Uploader struct {
	store  FolderStore
	policy retry.Policy
	logger *slog.Logger

	mu      sync.Mutex
	folders map[string]string
}

func NewUploader(store FolderStore, policy retry.Policy, logger *slog.Logger) *Uploader {
	l := logger.With("component", "uploader")
	policy.Logger = l
	return &Uploader{
		store:   store,
		policy:  policy,
		logger:  l,
		folders: make(map[string]string),
	}
}

func (u *Uploader) CheckAccess(ctx context.Context) error {
	return u.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		return u.store.CheckAccess(ctx)
	})
}

// EnsureFolder returns the id of the folder called name, creating it if needed.
func (u *Uploader) EnsureFolder(ctx context.Context, name string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if id, ok := u.folders[name]; ok {
		return id, nil
	}

	var id string
	err := u.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		id, err = u.store.GetFolderID(ctx, name)
		return err
	})
	if err != nil {
		return "", u.wrap("find folder", name, err)
	}

	if id == "" {
		err = u.policy.Do(ctx, func(ctx context.Context, attempt int) error {
			var err error
			id, err = u.store.CreateFolder(ctx, name)
			return err
		})
		if err != nil {
			return "", u.wrap("create folder", name, err)
		}
		u.logger.Info("created folder", "folder", name, "folder_id", id)
	} else {
		u.logger.Info("found folder", "folder", name, "folder_id", id)
	}

	u.folders[name] = id
	return id, nil
}

// Upload stores the file at path in the folder called folder and returns the
// new file's id.
func (u *Uploader) Upload(ctx context.Context, path, folder string) (string, error) {
	folderID, err := u.EnsureFolder(ctx, folder)
	if err != nil {
		return "", err
	}

	var fileID string
	err = u.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		fileID, err = u.store.UploadFile(ctx, path, folderID)
		return err
	})
	if err != nil {
		return "", u.wrap("upload file", path, err)
	}

	u.logger.Info("uploaded file", "path", path, "folder", folder, "file_id", fileID)
	return fileID, nil
}

func (u *Uploader) wrap(op, target string, err error) error {
	if herrors.IsAuthentication(err) {
		return err
	}
	return herrors.NewUpload(op, target, err)
}
