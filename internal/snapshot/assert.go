package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"snapshot-render/internal/bitmap"
	"snapshot-render/internal/capture"
	"snapshot-render/internal/storage"
)

// RecordEnv switches Assert into record mode when set to "1".
const RecordEnv = "SNAPSHOT_RECORD"

// TestingT is the subset of *testing.T that Assert reports through.
type TestingT interface {
	Helper()
	Errorf(format string, args ...any)
}

type Options struct {
	Key    storage.Key
	View   capture.View
	Size   *capture.Size
	Render capture.RenderFunc

	References *storage.ReferenceStore
	Strategy   *Strategy

	// Record overwrites the reference with the rendered bitmap and fails.
	Record bool
}

func recording(o Options) bool {
	return o.Record || os.Getenv(RecordEnv) == "1"
}

// Assert renders opts.View and compares it against the stored reference. It
// reports through t and returns whether the snapshot matched.
func Assert(ctx context.Context, t TestingT, opts Options) bool {
	t.Helper()

	candidate, err := opts.Render(ctx, opts.View, opts.Size, opts.Strategy.Scale).Await(ctx)
	if err != nil {
		t.Errorf("failed to render %s: %v", opts.Key.Path(opts.References.Codec.Extension()), err)
		return false
	}

	if recording(opts) {
		return record(ctx, t, opts, candidate, "Record mode is on. Turn record mode off and re-run to test against the newly-recorded snapshot.")
	}

	reference, err := opts.References.Load(ctx, opts.Key)
	if errors.Is(err, storage.ErrNotFound) {
		return record(ctx, t, opts, candidate, "No reference was found. Automatically recorded snapshot; re-run to test against it.")
	}
	var loadErr error
	if err != nil {
		loadErr = err
		reference = nil
	}

	report := opts.Strategy.Diff(reference, candidate)
	if report == nil {
		return true
	}

	urls, err := uploadAttachments(ctx, opts, report)
	if err != nil {
		t.Errorf("%s\n\nfailed to save attachments: %v", report.Message, err)
		return false
	}

	var b strings.Builder
	b.WriteString(report.Message)
	if loadErr != nil {
		fmt.Fprintf(&b, "\n\n%v", loadErr)
	}
	if len(urls) > 0 {
		b.WriteString("\n")
		for i, a := range report.Attachments {
			fmt.Fprintf(&b, "\n%s: %s", a.Name, urls[i])
		}
	}
	t.Errorf("%s", b.String())
	return false
}

func record(ctx context.Context, t TestingT, opts Options, candidate *bitmap.Bitmap, message string) bool {
	t.Helper()

	if candidate == nil || candidate.IsEmpty() {
		t.Errorf("cannot record %s: the rendered image is empty", opts.References.URL(opts.Key))
		return false
	}

	url, err := opts.References.Save(ctx, opts.Key, candidate)
	if err != nil {
		t.Errorf("failed to record %s: %v", opts.References.URL(opts.Key), err)
		return false
	}
	t.Errorf("%s\n\nrecorded: %s", message, url)
	return false
}

// uploadAttachments stores every attachment next to the failures directory
// and returns their URLs in attachment order.
func uploadAttachments(ctx context.Context, opts Options, report *Report) ([]string, error) {
	c := opts.Strategy.Codec
	urls := make([]string, len(report.Attachments))

	eg, ctx := errgroup.WithContext(ctx)
	for i, a := range report.Attachments {
		eg.Go(func() error {
			data, err := a.Bytes(c)
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", a.Name, err)
			}
			url, err := opts.References.Storage.Put(ctx, opts.Key.FailurePath(a.Name, a.Extension(c)), data)
			if err != nil {
				return fmt.Errorf("failed to upload %s: %w", a.Name, err)
			}
			urls[i] = url
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}
