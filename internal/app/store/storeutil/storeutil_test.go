package storeutil

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestPaginate(t *testing.T) {
	tests := []struct {
		limit, page       int64
		wantLimit, wantSk int64
	}{
		{10, 1, 10, 0},
		{10, 3, 10, 20},
		{0, 0, 20, 0},
		{-5, -1, 20, 0},
	}
	for _, tt := range tests {
		opts := Paginate(tt.limit, tt.page)
		if *opts.Limit != tt.wantLimit || *opts.Skip != tt.wantSk {
			t.Errorf("Paginate(%d, %d) = limit %d skip %d, want %d %d",
				tt.limit, tt.page, *opts.Limit, *opts.Skip, tt.wantLimit, tt.wantSk)
		}
	}
}

func TestClassify(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no documents", mongo.ErrNoDocuments, apperr.ErrNotFound},
		{"wrapped no documents", fmt.Errorf("find: %w", mongo.ErrNoDocuments), apperr.ErrNotFound},
		{"duplicate key", dup, apperr.ErrConflict},
		{"deadline", context.DeadlineExceeded, apperr.ErrStoreUnavailable},
		{"disconnected", mongo.ErrClientDisconnected, apperr.ErrStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("op", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	if Classify("op", nil) != nil {
		t.Error("Classify(nil) should be nil")
	}

	other := errors.New("boom")
	if got := Classify("op", other); !errors.Is(got, other) || apperr.KindOf(got) != apperr.KindInternal {
		t.Errorf("Classify(other) = %v, kind %q", got, apperr.KindOf(got))
	}
}

func TestClassify_SchemaViolation(t *testing.T) {
	err := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 121, Message: "Document failed validation"}}}
	if got := Classify("insert", err); !errors.Is(got, apperr.ErrValidation) {
		t.Errorf("Classify(schema violation) = %v, want ErrValidation", got)
	}
}
