// Copyright 2025 Shadow Atlas Project
//
// Firestore durable mirror for the provenance log. The NDJSON shards
// on disk are the system of record; this mirror gives operators a
// queryable, durable copy that survives local disk loss, the way the
// teacher's Firestore client mirrors its on-chain audit trail.

package provenance

import (
	"context"
	"fmt"
	"log"
	"sync"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// FirestoreConfig configures the mirror client.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
	Enabled         bool
	Collection      string // default "discovery-attempts"
	Logger          *log.Logger
}

// FirestoreMirror writes provenance entries to a Firestore collection
// in addition to the local NDJSON shards. When disabled it is a no-op,
// so local-only development never requires GCP credentials.
type FirestoreMirror struct {
	mu         sync.RWMutex
	app        *firebase.App
	client     *gcpfirestore.Client
	collection string
	enabled    bool
	logger     *log.Logger
}

// NewFirestoreMirror builds a mirror from cfg. When cfg.Enabled is
// false, every write is a no-op and no network calls are made.
func NewFirestoreMirror(ctx context.Context, cfg FirestoreConfig) (*FirestoreMirror, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[provenance-firestore] ", log.LstdFlags)
	}
	if cfg.Collection == "" {
		cfg.Collection = "discovery-attempts"
	}

	m := &FirestoreMirror{collection: cfg.Collection, enabled: cfg.Enabled, logger: cfg.Logger}
	if !cfg.Enabled {
		cfg.Logger.Println("provenance Firestore mirror disabled - running no-op")
		return m, nil
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("provenance: firestore project id required when mirror is enabled")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("provenance: init firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("provenance: create firestore client: %w", err)
	}

	m.app = app
	m.client = client
	cfg.Logger.Printf("provenance Firestore mirror initialized for project %s", cfg.ProjectID)
	return m, nil
}

// IsEnabled reports whether the mirror performs real Firestore writes.
func (m *FirestoreMirror) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Close releases the underlying Firestore client, if any.
func (m *FirestoreMirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Mirror writes e to the Firestore collection, keyed by
// "<fips>-<timestamp-unixnano>" for natural chronological document
// ordering per jurisdiction.
func (m *FirestoreMirror) Mirror(ctx context.Context, e Entry) error {
	if !m.IsEnabled() {
		m.logger.Printf("firestore mirror disabled - skipping entry for fips=%s", e.FIPS)
		return nil
	}
	docID := fmt.Sprintf("%s-%d", e.FIPS, e.Timestamp.UnixNano())
	_, err := m.client.Collection(m.collection).Doc(docID).Set(ctx, e)
	if err != nil {
		return fmt.Errorf("provenance: mirror entry %s to firestore: %w", docID, err)
	}
	return nil
}
