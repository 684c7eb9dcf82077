package drive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/maltedev/listing-harvester/internal/retry"
	herrors "github.com/maltedev/listing-harvester/pkg/errors"
)

type MockFolderStore struct {
	mock.Mock
}

var _ FolderStore = (*MockFolderStore)(nil)

func (m *MockFolderStore) CheckAccess(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockFolderStore) GetFolderID(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *MockFolderStore) CreateFolder(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *MockFolderStore) UploadFile(ctx context.Context, path, folderID string) (string, error) {
	args := m.Called(ctx, path, folderID)
	return args.String(0), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy() retry.Policy {
	p := DefaultPolicy()
	p.BackoffBase = 0
	p.BackoffCap = 0
	return p
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, "4s", p.Backoff(1).String())
	assert.Equal(t, "8s", p.Backoff(2).String())
	assert.Equal(t, "10s", p.Backoff(3).String())
}

func TestUploadCreatesFolderOnce(t *testing.T) {
	ctx := context.Background()
	store := new(MockFolderStore)
	store.On("GetFolderID", mock.Anything, "2024-05-09").Return("", nil).Once()
	store.On("CreateFolder", mock.Anything, "2024-05-09").Return("folder-1", nil).Once()
	store.On("UploadFile", mock.Anything, "/tmp/a.xlsx", "folder-1").Return("file-a", nil).Once()
	store.On("UploadFile", mock.Anything, "/tmp/b.xlsx", "folder-1").Return("file-b", nil).Once()

	u := NewUploader(store, fastPolicy(), testLogger())

	id, err := u.Upload(ctx, "/tmp/a.xlsx", "2024-05-09")
	require.NoError(t, err)
	assert.Equal(t, "file-a", id)

	id, err = u.Upload(ctx, "/tmp/b.xlsx", "2024-05-09")
	require.NoError(t, err)
	assert.Equal(t, "file-b", id)

	store.AssertExpectations(t)
}

func TestUploadReusesExistingFolder(t *testing.T) {
	store := new(MockFolderStore)
	store.On("GetFolderID", mock.Anything, "2024-05-09").Return("existing", nil).Once()
	store.On("UploadFile", mock.Anything, "/tmp/a.xlsx", "existing").Return("file-a", nil).Once()

	_, err := NewUploader(store, fastPolicy(), testLogger()).Upload(context.Background(), "/tmp/a.xlsx", "2024-05-09")
	require.NoError(t, err)

	store.AssertNotCalled(t, "CreateFolder", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestUploadRetriesTransientFailures(t *testing.T) {
	store := new(MockFolderStore)
	store.On("GetFolderID", mock.Anything, "d").Return("f", nil)
	store.On("UploadFile", mock.Anything, "x.xlsx", "f").Return("", &googleapi.Error{Code: 503}).Twice()
	store.On("UploadFile", mock.Anything, "x.xlsx", "f").Return("file-x", nil).Once()

	id, err := NewUploader(store, fastPolicy(), testLogger()).Upload(context.Background(), "x.xlsx", "d")
	require.NoError(t, err)
	assert.Equal(t, "file-x", id)
	store.AssertNumberOfCalls(t, "UploadFile", 3)
}

func TestUploadGivesUpWithUploadError(t *testing.T) {
	store := new(MockFolderStore)
	store.On("GetFolderID", mock.Anything, "d").Return("f", nil)
	store.On("UploadFile", mock.Anything, "x.xlsx", "f").Return("", &googleapi.Error{Code: 500})

	_, err := NewUploader(store, fastPolicy(), testLogger()).Upload(context.Background(), "x.xlsx", "d")
	require.Error(t, err)
	assert.True(t, herrors.Is(err, herrors.KindUpload))
	store.AssertNumberOfCalls(t, "UploadFile", 3)
}

func TestUploadDoesNotRetryPermissionErrors(t *testing.T) {
	store := new(MockFolderStore)
	store.On("GetFolderID", mock.Anything, "d").Return("", &googleapi.Error{Code: 403})

	_, err := NewUploader(store, fastPolicy(), testLogger()).Upload(context.Background(), "x.xlsx", "d")
	require.Error(t, err)
	assert.True(t, herrors.IsAuthentication(err))
	store.AssertNumberOfCalls(t, "GetFolderID", 1)
	store.AssertNotCalled(t, "UploadFile", mock.Anything, mock.Anything, mock.Anything)
}

func userRateLimited() *googleapi.Error {
	return &googleapi.Error{
		Code:   403,
		Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded", Message: "User rate limit exceeded."}},
	}
}

func TestUploadRetriesRateLimitedForbidden(t *testing.T) {
	store := new(MockFolderStore)
	store.On("GetFolderID", mock.Anything, "d").Return("f", nil)
	store.On("UploadFile", mock.Anything, "x.xlsx", "f").Return("", userRateLimited()).Once()
	store.On("UploadFile", mock.Anything, "x.xlsx", "f").Return("file-x", nil).Once()

	id, err := NewUploader(store, fastPolicy(), testLogger()).Upload(context.Background(), "x.xlsx", "d")
	require.NoError(t, err)
	assert.Equal(t, "file-x", id)
	store.AssertNumberOfCalls(t, "UploadFile", 2)
}

func TestUploadRateLimitExhaustedIsNotAuthentication(t *testing.T) {
	store := new(MockFolderStore)
	store.On("GetFolderID", mock.Anything, "d").Return("f", nil)
	store.On("UploadFile", mock.Anything, "x.xlsx", "f").Return("", userRateLimited())

	_, err := NewUploader(store, fastPolicy(), testLogger()).Upload(context.Background(), "x.xlsx", "d")
	require.Error(t, err)
	assert.False(t, herrors.IsAuthentication(err))
	assert.True(t, herrors.Is(err, herrors.KindUpload))
	store.AssertNumberOfCalls(t, "UploadFile", 3)
}

func TestClassify(t *testing.T) {
	c := &Client{logger: testLogger()}

	assert.True(t, herrors.Is(c.classify("upload file", "x.xlsx", userRateLimited()), herrors.KindTransient))
	assert.True(t, herrors.Is(c.classify("find folder", "d", &googleapi.Error{Code: 403}), herrors.KindAuthentication))
	assert.True(t, herrors.Is(c.classify("upload file", "x.xlsx", &googleapi.Error{Code: 502}), herrors.KindTransient))

	plain := c.classify("upload file", "x.xlsx", &googleapi.Error{Code: 404})
	assert.Equal(t, herrors.Kind(""), herrors.KindOf(plain))
}

func TestCheckAccess(t *testing.T) {
	store := new(MockFolderStore)
	store.On("CheckAccess", mock.Anything).Return(herrors.NewAuthentication("check", errors.New("denied"))).Once()

	err := NewUploader(store, fastPolicy(), testLogger()).CheckAccess(context.Background())
	assert.True(t, herrors.IsAuthentication(err))
	store.AssertExpectations(t)
}

func TestFolderQuery(t *testing.T) {
	assert.Equal(t,
		`name='2024-05-09' and 'parent-1' in parents and mimeType='application/vnd.google-apps.folder' and trashed=false`,
		folderQuery("2024-05-09", "parent-1"))
	assert.Equal(t,
		`name='it\'s' and 'p' in parents and mimeType='application/vnd.google-apps.folder' and trashed=false`,
		folderQuery("it's", "p"))
}
