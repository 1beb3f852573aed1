package direct

import (
	"context"
	"sort"
	"sync"

	"github.com/dataviz-jp/cartosync/pkg/project"
	"github.com/dataviz-jp/cartosync/pkg/session"
)

// MemoryStore is an in-process MetadataStore used by the development gateway
// and by tests. It mimics the backend's row-level scoping: rows are visible
// only to the owner identified by the call's bearer token.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]project.Record
}

var _ MetadataStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory metadata store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]project.Record)}
}

// Upsert inserts or merges row by id.
func (m *MemoryStore) Upsert(ctx context.Context, token string, row Row) (*project.Record, error) {
	_ = ctx
	owner, err := ownerFromToken(token)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.rows[row.ID]
	if exists && rec.OwnerID != owner {
		// A foreign row under this id is invisible to the caller; the
		// backend would reject the write.
		return nil, &metadataError{Status: 403, Message: "row belongs to another owner"}
	}

	stored := project.Record{
		ID:            row.ID,
		OwnerID:       owner,
		Name:          row.Name,
		AppScope:      row.AppScope,
		StoragePath:   row.StoragePath,
		ThumbnailPath: row.ThumbnailPath,
		UpdatedAt:     row.UpdatedAt,
	}
	if exists {
		// Merge semantics: absent created_at keeps the original.
		stored.CreatedAt = rec.CreatedAt
		if row.CreatedAt != nil {
			stored.CreatedAt = *row.CreatedAt
		}
	} else {
		if row.CreatedAt != nil {
			stored.CreatedAt = *row.CreatedAt
		} else {
			stored.CreatedAt = row.UpdatedAt
		}
	}

	m.rows[row.ID] = stored
	return &stored, nil
}

// Find returns the rows matching id that the caller may see.
func (m *MemoryStore) Find(ctx context.Context, token, id string) ([]project.Record, error) {
	_ = ctx
	owner, err := ownerFromToken(token)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.rows[id]
	if !ok || rec.OwnerID != owner {
		return nil, nil
	}
	return []project.Record{rec}, nil
}

// List returns the caller's summaries in appScope, newest update first.
func (m *MemoryStore) List(ctx context.Context, token, appScope string) ([]project.Summary, error) {
	_ = ctx
	owner, err := ownerFromToken(token)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []project.Summary
	for _, rec := range m.rows {
		if rec.OwnerID != owner || rec.AppScope != appScope {
			continue
		}
		out = append(out, project.Summary{
			ID:            rec.ID,
			Name:          rec.Name,
			ThumbnailPath: rec.ThumbnailPath,
			CreatedAt:     rec.CreatedAt,
			UpdatedAt:     rec.UpdatedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Delete removes the row under id when the caller owns it.
func (m *MemoryStore) Delete(ctx context.Context, token, id string) (int, error) {
	_ = ctx
	owner, err := ownerFromToken(token)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.rows[id]
	if !ok || rec.OwnerID != owner {
		return 0, nil
	}
	delete(m.rows, id)
	return 1, nil
}

// Close releases resources (none held).
func (m *MemoryStore) Close() error { return nil }

func ownerFromToken(token string) (string, error) {
	user, err := session.UserFromToken(token)
	if err != nil {
		return "", &metadataError{Status: 401, Message: err.Error()}
	}
	return user.ID, nil
}
