package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

func (s *Store) listCategories(ctx context.Context, table string) ([]Category, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, name, COALESCE(description, '') FROM %s ORDER BY name COLLATE NOCASE ASC`, table),
	)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return categories, nil
}

func (s *Store) addCategory(ctx context.Context, table, name, description string) (*Category, error) {
	ctx = ensureContext(ctx)
	c := Category{ID: uuid.NewString(), Name: name, Description: description}
	_, err := s.execWithRetry(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, name, description) VALUES (?, ?, ?)`, table),
		c.ID, c.Name, c.Description,
	)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	return &c, nil
}

// HookTypes lists the hook-type taxonomy ordered by name.
func (s *Store) HookTypes(ctx context.Context) ([]Category, error) {
	return s.listCategories(ctx, "hook_types")
}

// Topics lists the topic taxonomy ordered by name.
func (s *Store) Topics(ctx context.Context) ([]Category, error) {
	return s.listCategories(ctx, "topics")
}

// Audiences lists the audience taxonomy ordered by name.
func (s *Store) Audiences(ctx context.Context) ([]Category, error) {
	return s.listCategories(ctx, "audiences")
}

// AddHookType inserts a new hook type.
func (s *Store) AddHookType(ctx context.Context, name, description string) (*Category, error) {
	return s.addCategory(ctx, "hook_types", name, description)
}

// AddTopic inserts a new topic.
func (s *Store) AddTopic(ctx context.Context, name, description string) (*Category, error) {
	return s.addCategory(ctx, "topics", name, description)
}

// AddAudience inserts a new audience.
func (s *Store) AddAudience(ctx context.Context, name, description string) (*Category, error) {
	return s.addCategory(ctx, "audiences", name, description)
}
