package tools

import (
	"context"
	"sync"

	"github.com/alula-collections/alula-go/internal/catalog"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeIndex is an in-memory MetadataIndex. Search returns the first k entries
// in slice order.
type fakeIndex struct {
	mu           sync.Mutex
	entries      []catalog.Entry
	err          error
	searchCalls  int
	lookupCalls  int
	lastK        int
	lastLookedUp string
}

func (f *fakeIndex) Search(_ context.Context, _ string, k int) ([]catalog.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.entries) {
		return append([]catalog.Entry(nil), f.entries[:k]...), nil
	}
	return append([]catalog.Entry(nil), f.entries...), nil
}

func (f *fakeIndex) SearchByInventory(_ context.Context, invNo string) ([]catalog.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	f.lastLookedUp = invNo
	if f.err != nil {
		return nil, f.err
	}
	for _, e := range f.entries {
		if e.InvNo == invNo {
			return []catalog.Entry{e}, nil
		}
	}
	return nil, nil
}

// fakeImages is an in-memory ImageIndex returning the first k records.
type fakeImages struct {
	mu    sync.Mutex
	recs  []catalog.ImageRecord
	err   error
	calls int
	lastK int
}

func (f *fakeImages) SearchByEmbedding(_ context.Context, _ []float32, k int) ([]catalog.ImageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.recs) {
		return append([]catalog.ImageRecord(nil), f.recs[:k]...), nil
	}
	return append([]catalog.ImageRecord(nil), f.recs...), nil
}

// fakeJoint is a JointEmbedder returning a fixed vector.
type fakeJoint struct {
	mu         sync.Mutex
	imageErr   error
	textErr    error
	textCalls  int
	imageCalls int
}

func (f *fakeJoint) EmbedText(_ context.Context, _ string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls++
	if f.textErr != nil {
		return nil, f.textErr
	}
	return []float32{1, 0}, nil
}

func (f *fakeJoint) EmbedImage(_ context.Context, _ string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls++
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return []float32{0, 1}, nil
}

// fakeExplainer records prompts and returns a canned explanation.
type fakeExplainer struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (f *fakeExplainer) Explain(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func fixtureEntries() []catalog.Entry {
	return []catalog.Entry{
		{InvNo: "AL-001", Content: "Sandstone statue of a Lihyanite king", Images: []string{"img/al-001_front.jpg", "img/al-001_side.jpg"}},
		{InvNo: "AL-042", Content: "Bronze incense burner with lion head", Images: []string{"img/al-042.jpg"}},
		{InvNo: "AL-077", Content: "Nabataean inscription fragment"},
		{InvNo: "AL-080", Content: "Glass perfume flask"},
		{InvNo: "AL-099", Content: "Iron arrowhead"},
	}
}

func fixtureImages() []catalog.ImageRecord {
	return []catalog.ImageRecord{
		{InvNo: "AL-042", ImagePath: "img/al-042.jpg", Score: 0.93},
		{InvNo: "AL-001", ImagePath: "img/al-001_front.jpg", Score: 0.71},
		{InvNo: "AL-001", ImagePath: "img/al-001_side.jpg", Score: 0.70},
		{InvNo: "AL-077", ImagePath: "img/al-077.jpg", Score: 0.40},
		{InvNo: "AL-099", ImagePath: "img/al-099.jpg", Score: 0.12},
	}
}
