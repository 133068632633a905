package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const scriptColumns = `id, name, path, description, category, run_as_admin, created_at_ms, updated_at_ms`

// CreateScript registers a new script and sets its ID and timestamps.
func (s *Store) CreateScript(ctx context.Context, script *Script) error {
	if err := validateScript(script); err != nil {
		return err
	}

	now := s.now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scripts (name, path, description, category, run_as_admin, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, script.Name, script.Path, script.Description, script.Category, script.RunAsAdmin, toMillis(now), toMillis(now))
	if err != nil {
		return fmt.Errorf("insert script %q: %w", script.Path, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read script id: %w", err)
	}

	script.ID = id
	script.CreatedAt = fromMillis(toMillis(now))
	script.UpdatedAt = script.CreatedAt

	return nil
}

// UpsertScript registers script, or updates the existing entry with the
// same path. It reports whether a new entry was created.
func (s *Store) UpsertScript(ctx context.Context, script *Script) (bool, error) {
	if err := validateScript(script); err != nil {
		return false, err
	}

	existing, err := s.scriptByPath(ctx, script.Path)
	if err != nil && !errors.Is(err, ErrScriptNotFound) {
		return false, err
	}

	if existing == nil {
		return true, s.CreateScript(ctx, script)
	}

	now := s.now().UTC()

	if _, err := s.db.ExecContext(ctx, `
		UPDATE scripts
		SET name = ?, description = ?, category = ?, run_as_admin = ?, updated_at_ms = ?
		WHERE id = ?
	`, script.Name, script.Description, script.Category, script.RunAsAdmin, toMillis(now), existing.ID); err != nil {
		return false, fmt.Errorf("update script %d: %w", existing.ID, err)
	}

	script.ID = existing.ID
	script.CreatedAt = existing.CreatedAt
	script.UpdatedAt = fromMillis(toMillis(now))

	return false, nil
}

// GetScript returns the script with id.
func (s *Store) GetScript(ctx context.Context, id int64) (*Script, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scriptColumns+` FROM scripts WHERE id = ?`, id)

	script, err := scanScript(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrScriptNotFound, id)
		}

		return nil, fmt.Errorf("query script %d: %w", id, err)
	}

	return &script, nil
}

func (s *Store) scriptByPath(ctx context.Context, path string) (*Script, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scriptColumns+` FROM scripts WHERE path = ?`, path)

	script, err := scanScript(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScriptNotFound
		}

		return nil, fmt.Errorf("query script by path: %w", err)
	}

	return &script, nil
}

// ListScripts returns all scripts ordered by category then name.
func (s *Store) ListScripts(ctx context.Context) ([]Script, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scriptColumns+`
		FROM scripts
		ORDER BY category ASC, name COLLATE NOCASE ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query scripts: %w", err)
	}
	defer rows.Close()

	items := make([]Script, 0)

	for rows.Next() {
		script, scanErr := scanScript(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		items = append(items, script)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scripts: %w", err)
	}

	return items, nil
}

// DeleteScript removes a script and, through the foreign key, its runs.
func (s *Store) DeleteScript(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scripts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete script %d: %w", id, err)
	}

	n, err := rowsAffected(res, fmt.Sprintf("delete script %d", id))
	if err != nil {
		return err
	}

	if n == 0 {
		return fmt.Errorf("%w: %d", ErrScriptNotFound, id)
	}

	return nil
}

func validateScript(script *Script) error {
	if script == nil {
		return errors.New("script is required")
	}

	script.Path = strings.TrimSpace(script.Path)
	script.Name = strings.TrimSpace(script.Name)

	if script.Path == "" {
		return errors.New("script path is required")
	}

	if script.Name == "" {
		return errors.New("script name is required")
	}

	return nil
}

func scanScript(s scanner) (Script, error) {
	var (
		script    Script
		createdMS int64
		updatedMS int64
	)

	if err := s.Scan(
		&script.ID,
		&script.Name,
		&script.Path,
		&script.Description,
		&script.Category,
		&script.RunAsAdmin,
		&createdMS,
		&updatedMS,
	); err != nil {
		return Script{}, err
	}

	script.CreatedAt = fromMillis(createdMS)
	script.UpdatedAt = fromMillis(updatedMS)

	return script, nil
}
