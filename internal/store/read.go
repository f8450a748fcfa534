package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ReadObservations returns every observation ordered by seq.
func (s *Store) ReadObservations(ctx context.Context) ([]Observation, error) {
	return s.queryObservations(ctx, `
		SELECT seq, payload FROM observations
		ORDER BY seq ASC
	`)
}

// ReadObservationsByObserver returns one observer's observations ordered
// by seq.
func (s *Store) ReadObservationsByObserver(ctx context.Context, observer string) ([]Observation, error) {
	return s.queryObservations(ctx, `
		SELECT seq, payload FROM observations
		WHERE observer = ?
		ORDER BY seq ASC
	`, observer)
}

func (s *Store) queryObservations(ctx context.Context, query string, args ...any) ([]Observation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	out := []Observation{}
	for rows.Next() {
		var obs Observation
		var payload string
		if err := rows.Scan(&obs.Seq, &payload); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if obs.Event, err = unmarshalInbound(payload); err != nil {
			return nil, fmt.Errorf("observation %d: %w", obs.Seq, err)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return out, nil
}

// ReadPublications returns every publication ordered by seq.
func (s *Store) ReadPublications(ctx context.Context) ([]Publication, error) {
	return s.queryPublications(ctx, `
		SELECT seq, observation_seq, identity_key, payload FROM publications
		ORDER BY seq ASC
	`)
}

// ReadPublicationsForInstance returns the publications about one
// instance ordered by seq.
func (s *Store) ReadPublicationsForInstance(ctx context.Context, instanceID string) ([]Publication, error) {
	return s.queryPublications(ctx, `
		SELECT seq, observation_seq, identity_key, payload FROM publications
		WHERE instance_id = ?
		ORDER BY seq ASC
	`, instanceID)
}

// ReadPublicationsByIdentity returns the discovery and summary
// publications of every instance with the given identity key.
func (s *Store) ReadPublicationsByIdentity(ctx context.Context, key string) ([]Publication, error) {
	return s.queryPublications(ctx, `
		SELECT seq, observation_seq, identity_key, payload FROM publications
		WHERE identity_key = ?
		ORDER BY seq ASC
	`, key)
}

// ReadTriggered returns the publications produced by one observation.
func (s *Store) ReadTriggered(ctx context.Context, observationSeq int64) ([]Publication, error) {
	return s.queryPublications(ctx, `
		SELECT seq, observation_seq, identity_key, payload FROM publications
		WHERE observation_seq = ?
		ORDER BY seq ASC
	`, observationSeq)
}

func (s *Store) queryPublications(ctx context.Context, query string, args ...any) ([]Publication, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query publications: %w", err)
	}
	defer rows.Close()

	out := []Publication{}
	for rows.Next() {
		var pub Publication
		var payload string
		if err := rows.Scan(&pub.Seq, &pub.ObservationSeq, &pub.IdentityKey, &payload); err != nil {
			return nil, fmt.Errorf("scan publication: %w", err)
		}
		if pub.Outbound, err = unmarshalOutbound(payload); err != nil {
			return nil, fmt.Errorf("publication %d: %w", pub.Seq, err)
		}
		out = append(out, pub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate publications: %w", err)
	}
	return out, nil
}

// LastSeq returns the highest seq in either stream, 0 for an empty log.
// Used to resume the engine clock.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT seq FROM observations
			UNION ALL
			SELECT seq FROM publications
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}
