package repository

import (
	"context"

	"gameshop/internal/docstore"
	"gameshop/internal/models"
)

type inputTablesDoc struct {
	InputTables []models.InputTable `json:"inputTables" validate:"dive"`
}

// NewInputTable describes an input field buyers fill in for a category.
type NewInputTable struct {
	CategoryID  string `json:"categoryId" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Placeholder string `json:"placeholder"`
}

func (r *Repository) ListInputTables(ctx context.Context) ([]models.InputTable, error) {
	doc, err := load[inputTablesDoc](ctx, r, r.bins.InputTables)
	return doc.InputTables, err
}

func (r *Repository) ListInputTablesByCategory(ctx context.Context, categoryID string) ([]models.InputTable, error) {
	tables, err := r.ListInputTables(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.InputTable, 0, len(tables))
	for _, t := range tables {
		if t.CategoryID == categoryID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *Repository) CreateInputTable(ctx context.Context, in NewInputTable) (models.InputTable, error) {
	table := models.InputTable{
		ID:          newID(),
		CategoryID:  in.CategoryID,
		Name:        in.Name,
		Placeholder: in.Placeholder,
		CreatedAt:   r.timestamp(),
	}
	_, err := modify(ctx, r, r.bins.InputTables, func(doc *inputTablesDoc) error {
		doc.InputTables = append(doc.InputTables, table)
		return nil
	})
	return table, err
}

func (r *Repository) UpdateInputTable(ctx context.Context, id string, patch models.InputTablePatch) (models.InputTable, error) {
	var out models.InputTable
	_, err := modify(ctx, r, r.bins.InputTables, func(doc *inputTablesDoc) error {
		for i := range doc.InputTables {
			t := &doc.InputTables[i]
			if t.ID != id {
				continue
			}
			if patch.Name != nil {
				t.Name = *patch.Name
			}
			if patch.Placeholder != nil {
				t.Placeholder = *patch.Placeholder
			}
			out = *t
			return nil
		}
		return ErrNotFound
	})
	return out, err
}

func (r *Repository) DeleteInputTable(ctx context.Context, id string) error {
	_, err := modify(ctx, r, r.bins.InputTables, func(doc *inputTablesDoc) error {
		kept := doc.InputTables[:0]
		for _, t := range doc.InputTables {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		if len(kept) == len(doc.InputTables) {
			return ErrNotFound
		}
		doc.InputTables = kept
		return nil
	})
	return err
}

func (r *Repository) DeleteInputTablesByCategory(ctx context.Context, categoryID string) error {
	_, err := modify(ctx, r, r.bins.InputTables, func(doc *inputTablesDoc) error {
		kept := doc.InputTables[:0]
		for _, t := range doc.InputTables {
			if t.CategoryID != categoryID {
				kept = append(kept, t)
			}
		}
		if len(kept) == len(doc.InputTables) {
			return docstore.ErrNoChange
		}
		doc.InputTables = kept
		return nil
	})
	return err
}
