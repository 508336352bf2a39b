package ledger

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/repledger/backend/internal/models"
	"go.uber.org/zap"
)

const localLedgerFile = "awards.jsonl"

// localEntry is one line of the ledger file. Hash covers PrevHash and Record, so
// editing or dropping any earlier line breaks every later hash.
type localEntry struct {
	Index    int64               `json:"index"`
	PrevHash string              `json:"prev_hash,omitempty"`
	Hash     string              `json:"hash"`
	Record   models.LedgerRecord `json:"record"`
}

// Local is an append-only ledger kept in memory and, when dir is set, mirrored to
// a JSON-lines file. Organizer authority comes from a fixed allow-list.
//
// The file has one writer (the API). Other processes opening the same dir see
// its appends on their next read.
type Local struct {
	mu         sync.RWMutex
	entries    []localEntry
	byRef      map[string]int
	organizers map[string]bool
	file       *os.File
	offset     int64 // bytes of the file already loaded
	log        *zap.Logger
	now        func() time.Time
}

// NewLocal creates a memory-only ledger.
func NewLocal(organizers []string, log *zap.Logger) *Local {
	l := &Local{
		byRef:      make(map[string]int),
		organizers: make(map[string]bool),
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, o := range organizers {
		if w, err := l.NormalizeWallet(o); err == nil {
			l.organizers[w] = true
		}
	}
	return l
}

// OpenLocal loads and verifies the ledger file in dir. An empty dir gives a
// memory-only ledger.
func OpenLocal(dir string, organizers []string, log *zap.Logger) (*Local, error) {
	l := NewLocal(organizers, log)
	if dir == "" {
		return l, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	path := filepath.Join(dir, localLedgerFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}

	l.file = f
	if err := l.loadNew(); err != nil {
		f.Close()
		return nil, err
	}

	log.Info("local ledger opened", zap.String("path", path), zap.Int("entries", len(l.entries)))
	return l, nil
}

// loadNew reads complete lines appended to the file since the last load and
// checks that each continues the hash chain. Caller holds l.mu for writing.
func (l *Local) loadNew() error {
	if l.file == nil {
		return nil
	}
	st, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger file: %w", err)
	}
	if st.Size() <= l.offset {
		return nil
	}

	r := bufio.NewReader(io.NewSectionReader(l.file, l.offset, st.Size()-l.offset))
	for {
		line, err := r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// a partial trailing line is picked up once its writer finishes it
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ledger file: %w", err)
		}
		l.offset += int64(len(line))

		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var e localEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("ledger entry %d: %w", len(l.entries), err)
		}
		if err := l.checkNext(&e); err != nil {
			return err
		}
		l.entries = append(l.entries, e)
		l.byRef[e.Record.Ref] = len(l.entries) - 1
	}
}

// checkNext verifies that e extends the chain held in memory.
func (l *Local) checkNext(e *localEntry) error {
	i := len(l.entries)
	prev := ""
	if i > 0 {
		prev = l.entries[i-1].Hash
	}
	if e.Index != int64(i) {
		return fmt.Errorf("ledger entry %d: index %d out of sequence", i, e.Index)
	}
	if e.PrevHash != prev {
		return fmt.Errorf("ledger entry %d: prev hash mismatch", i)
	}
	h, err := entryHash(prev, &e.Record)
	if err != nil {
		return err
	}
	if h != e.Hash {
		return fmt.Errorf("ledger entry %d: hash mismatch", i)
	}
	return nil
}

func (l *Local) refresh() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadNew()
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Verify walks the hash chain from the first entry.
func (l *Local) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	walk := &Local{}
	for i := range l.entries {
		if err := walk.checkNext(&l.entries[i]); err != nil {
			return err
		}
		walk.entries = append(walk.entries, l.entries[i])
	}
	return nil
}

// entryHash excludes TransactionRef, which is the hash itself.
func entryHash(prev string, r *models.LedgerRecord) (string, error) {
	rec := *r
	rec.TransactionRef = ""
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal ledger record: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(prev))
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Submit appends the award. A ref already on the ledger is not written twice;
// the existing entry is returned instead.
func (l *Local) Submit(ctx context.Context, p models.AwardPayload) (*Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := EncodeComment(p); err != nil {
		return nil, err
	}
	user, err := l.NormalizeWallet(p.UserWallet)
	if err != nil {
		return nil, fmt.Errorf("%w: user wallet: %v", ErrRejected, err)
	}
	organizer, err := l.NormalizeWallet(p.OrganizerWallet)
	if err != nil {
		return nil, fmt.Errorf("%w: organizer wallet: %v", ErrRejected, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadNew(); err != nil {
		return nil, err
	}
	if !l.organizers[organizer] {
		return nil, fmt.Errorf("%w: %s is not an organizer", ErrRejected, organizer)
	}
	if i, ok := l.byRef[p.Ref]; ok {
		e := l.entries[i]
		return &Submission{Ref: p.Ref, UserWallet: e.Record.UserWallet, TransactionRef: e.Hash, SubmittedAt: e.Record.Timestamp}, nil
	}

	rec := models.LedgerRecord{
		Ref:             p.Ref,
		UserWallet:      user,
		CommunityID:     p.CommunityID,
		SchemaID:        p.SchemaID,
		ActionID:        p.ActionID,
		BasePoints:      p.BasePoints,
		BonusPoints:     p.BonusPoints,
		TotalPoints:     p.BasePoints + p.BonusPoints,
		OrganizerWallet: organizer,
		Timestamp:       l.now(),
	}

	prev := ""
	if n := len(l.entries); n > 0 {
		prev = l.entries[n-1].Hash
	}
	h, err := entryHash(prev, &rec)
	if err != nil {
		return nil, err
	}
	rec.TransactionRef = h
	e := localEntry{Index: int64(len(l.entries)), PrevHash: prev, Hash: h, Record: rec}

	if l.file != nil {
		line, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal ledger entry: %w", err)
		}
		n, err := l.file.Write(append(line, '\n'))
		if err != nil {
			return nil, fmt.Errorf("append ledger entry: %w", err)
		}
		l.offset += int64(n)
		if err := l.file.Sync(); err != nil {
			return nil, fmt.Errorf("sync ledger file: %w", err)
		}
	}

	l.entries = append(l.entries, e)
	l.byRef[rec.Ref] = len(l.entries) - 1

	l.log.Info("award appended",
		zap.String("ref", rec.Ref),
		zap.String("user", rec.UserWallet),
		zap.Int64("total", rec.TotalPoints),
		zap.String("hash", h),
	)

	return &Submission{Ref: rec.Ref, UserWallet: user, TransactionRef: h, SubmittedAt: rec.Timestamp}, nil
}

// AwaitConfirmation returns at once: an appended entry is final.
func (l *Local) AwaitConfirmation(ctx context.Context, sub *Submission) (*models.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.refresh(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.byRef[sub.Ref]
	if !ok {
		return nil, fmt.Errorf("%w: ref %s not on ledger", ErrRejected, sub.Ref)
	}
	return receiptFrom(&l.entries[i].Record), nil
}

func (l *Local) QueryEvents(ctx context.Context, f Filter) ([]models.LedgerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.UserWallet != "" {
		w, err := l.NormalizeWallet(f.UserWallet)
		if err != nil {
			return nil, err
		}
		f.UserWallet = w
	}
	if err := l.refresh(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if f.Ref != "" {
		i, ok := l.byRef[f.Ref]
		if !ok || !f.matches(&l.entries[i].Record) {
			return nil, nil
		}
		return []models.LedgerRecord{l.entries[i].Record}, nil
	}

	var out []models.LedgerRecord
	for i := range l.entries {
		if f.matches(&l.entries[i].Record) {
			out = append(out, l.entries[i].Record)
		}
	}
	return out, nil
}

func (l *Local) GetReputation(ctx context.Context, wallet string) (int64, error) {
	records, err := l.QueryEvents(ctx, Filter{UserWallet: wallet})
	if err != nil {
		return 0, err
	}
	var total int64
	for _, r := range records {
		total += r.TotalPoints
	}
	return total, nil
}

func (l *Local) IsOrganizer(_ context.Context, wallet string) (bool, error) {
	w, err := l.NormalizeWallet(wallet)
	if err != nil {
		return false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.organizers[w], nil
}

// NormalizeWallet lowercases hex (0x...) and raw TON (wc:hex) addresses so that
// comparisons ignore checksum casing. Other strings are only trimmed.
func (l *Local) NormalizeWallet(wallet string) (string, error) {
	w := strings.TrimSpace(wallet)
	if w == "" {
		return "", ErrInvalidWallet
	}
	if strings.HasPrefix(w, "0x") || strings.HasPrefix(w, "0X") || strings.Contains(w, ":") {
		return strings.ToLower(w), nil
	}
	return w, nil
}

// Len is the number of entries on the ledger.
func (l *Local) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

var _ Client = (*Local)(nil)
