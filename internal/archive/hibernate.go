package archive

import (
	"context"
	"encoding/json"

	"github.com/kode4food/timebox"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Hibernator implements timebox.Hibernator on a blob bucket, so a journal
// store can move the event logs of terminal instances out of Redis
type Hibernator struct {
	bucket *blob.Bucket
	prefix string
}

const journalSegment = "journal/"

var _ timebox.Hibernator = (*Hibernator)(nil)

// NewHibernator stores hibernated aggregates under prefix in bucket. The
// caller keeps ownership of the bucket
func NewHibernator(bucket *blob.Bucket, prefix string) *Hibernator {
	return &Hibernator{bucket: bucket, prefix: prefix}
}

// Hibernator returns a Hibernator sharing the Archiver's bucket. Its
// records live beside archived instances under a separate prefix
func (a *Archiver) Hibernator() *Hibernator {
	return NewHibernator(a.bucket, a.prefix+journalSegment)
}

func (h *Hibernator) Get(
	ctx context.Context, id timebox.AggregateID,
) (*timebox.HibernateRecord, error) {
	data, err := h.bucket.ReadAll(ctx, h.keyFor(id))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, timebox.ErrHibernateNotFound
		}
		return nil, err
	}

	var record timebox.HibernateRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (h *Hibernator) Put(
	ctx context.Context, id timebox.AggregateID, rec *timebox.HibernateRecord,
) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return h.bucket.WriteAll(ctx, h.keyFor(id), data, nil)
}

func (h *Hibernator) Delete(
	ctx context.Context, id timebox.AggregateID,
) error {
	err := h.bucket.Delete(ctx, h.keyFor(id))
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

func (h *Hibernator) keyFor(id timebox.AggregateID) string {
	return h.prefix + id.Join("/") + ".json"
}
