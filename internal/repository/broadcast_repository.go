package repository

import (
	"context"
	"fmt"
	"time"

	"system-image-push/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

const broadcastKind = "broadcast"

type BroadcastRepository interface {
	Create(b *domain.Broadcast) error
	// Latest returns the most recent broadcast on channel that has not
	// expired at now, or nil when there is none.
	Latest(channel string, now time.Time) (*domain.Broadcast, error)
	PruneExpired(now time.Time) (int, error)
}

type broadcastRepository struct {
	client *kivik.Client
	dbName string
}

func NewBroadcastRepository(client *kivik.Client, dbName string) BroadcastRepository {
	return &broadcastRepository{
		client: client,
		dbName: dbName,
	}
}

// keyLayout renders UTC times at fixed width, so byte order of keys is
// time order. RFC 3339 with trimmed fractions is not: "05.5Z" sorts
// after "05Z" but before "05.25Z".
const keyLayout = "2006-01-02T15:04:05.000000000Z"

func timeKey(t time.Time) string {
	return t.UTC().Format(keyLayout)
}

// broadcastDoc is a broadcast as stored in CouchDB, with the sortable
// keys the Mango queries compare on.
type broadcastDoc struct {
	DocID string `json:"_id,omitempty"`
	Rev   string `json:"_rev,omitempty"`
	domain.Broadcast
	CreatedKey string `json:"created_key"`
	ExpireKey  string `json:"expire_key,omitempty"`
}

func newBroadcastDoc(b *domain.Broadcast) *broadcastDoc {
	doc := &broadcastDoc{Broadcast: *b, CreatedKey: timeKey(b.CreatedAt)}
	if b.ExpireOn != nil {
		doc.ExpireKey = timeKey(*b.ExpireOn)
	}
	return doc
}

// EnsureBroadcastIndex creates the Mango index used by Latest.
func EnsureBroadcastIndex(client *kivik.Client, dbName string) error {
	db := client.DB(dbName)
	index := map[string]interface{}{
		"fields": []string{"kind", "channel", "created_key"},
	}
	if err := db.CreateIndex(context.Background(), "broadcasts", "by-channel", index); err != nil {
		return fmt.Errorf("failed to create broadcast index: %w", err)
	}
	return nil
}

func (r *broadcastRepository) Create(b *domain.Broadcast) error {
	db := r.client.DB(r.dbName)

	b.Kind = broadcastKind
	docID := fmt.Sprintf("broadcast:%s", b.ID)
	if _, err := db.Put(context.Background(), docID, newBroadcastDoc(b)); err != nil {
		return fmt.Errorf("failed to create broadcast: %w", err)
	}

	return nil
}

// latestQuery selects the newest broadcast on channel still live at now.
func latestQuery(channel string, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"selector": map[string]interface{}{
			"kind":    broadcastKind,
			"channel": channel,
			"$or": []map[string]interface{}{
				{"expire_key": map[string]interface{}{"$exists": false}},
				{"expire_key": map[string]interface{}{"$gte": timeKey(now)}},
			},
		},
		"sort": []map[string]string{
			{"kind": "desc"},
			{"channel": "desc"},
			{"created_key": "desc"},
		},
		"limit": 1,
	}
}

// expiredQuery selects broadcasts whose expiry lies strictly before now.
func expiredQuery(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"selector": map[string]interface{}{
			"kind":       broadcastKind,
			"expire_key": map[string]interface{}{"$lt": timeKey(now)},
		},
	}
}

func (r *broadcastRepository) Latest(channel string, now time.Time) (*domain.Broadcast, error) {
	db := r.client.DB(r.dbName)

	rows := db.Find(context.Background(), latestQuery(channel, now))
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query broadcasts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc broadcastDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode broadcast: %w", err)
		}
		if !doc.Expired(now) {
			b := doc.Broadcast
			return &b, nil
		}
	}

	return nil, rows.Err()
}

func (r *broadcastRepository) PruneExpired(now time.Time) (int, error) {
	db := r.client.DB(r.dbName)

	rows := db.Find(context.Background(), expiredQuery(now))
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to query expired broadcasts: %w", err)
	}
	defer rows.Close()

	pruned := 0
	for rows.Next() {
		var doc broadcastDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return pruned, fmt.Errorf("failed to decode broadcast: %w", err)
		}
		if !doc.Expired(now) {
			continue
		}
		if _, err := db.Delete(context.Background(), doc.DocID, doc.Rev); err != nil {
			return pruned, fmt.Errorf("failed to delete %s: %w", doc.DocID, err)
		}
		pruned++
	}

	return pruned, rows.Err()
}
