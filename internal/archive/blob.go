package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/store"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

// Archiver stores terminal instances as JSON documents in a blob bucket,
// supporting S3, GCS, Azure Blob Storage, and S3-compatible stores
type Archiver struct {
	bucket *blob.Bucket
	prefix string
}

var ErrNotTerminal = errors.New("only terminal instances can be archived")

// Open connects to the bucket at bucketURL
func Open(ctx context.Context, bucketURL, prefix string) (*Archiver, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return NewArchiver(bucket, prefix), nil
}

// NewArchiver wraps an already opened bucket
func NewArchiver(bucket *blob.Bucket, prefix string) *Archiver {
	return &Archiver{bucket: bucket, prefix: prefix}
}

// Get returns an archived instance, or store.ErrInstanceNotFound
func (a *Archiver) Get(
	ctx context.Context, id api.InstanceID,
) (*api.Instance, error) {
	data, err := a.bucket.ReadAll(ctx, a.keyFor(id))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", store.ErrInstanceNotFound, id)
		}
		return nil, err
	}

	var inst api.Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// Put writes a terminal instance to the bucket
func (a *Archiver) Put(ctx context.Context, inst *api.Instance) error {
	if !inst.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotTerminal, inst.ID,
			inst.Status)
	}
	data, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	return a.bucket.WriteAll(ctx, a.keyFor(inst.ID), data, nil)
}

// Exists reports whether an instance has been archived
func (a *Archiver) Exists(ctx context.Context, id api.InstanceID) (bool, error) {
	return a.bucket.Exists(ctx, a.keyFor(id))
}

// Delete removes an archived instance. Deleting a missing one succeeds
func (a *Archiver) Delete(ctx context.Context, id api.InstanceID) error {
	err := a.bucket.Delete(ctx, a.keyFor(id))
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

// Close releases the bucket
func (a *Archiver) Close() error {
	return a.bucket.Close()
}

func (a *Archiver) keyFor(id api.InstanceID) string {
	return a.prefix + string(id) + ".json"
}
