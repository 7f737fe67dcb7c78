package feed

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/icebook/icebook/engine"
	"github.com/icebook/icebook/models"
)

func TestWriteTrade(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	trade := engine.NewTrade(100322, 100345,
		decimal.NewFromInt(5103), decimal.NewFromInt(7500))
	if err := w.WriteTrade(trade); err != nil {
		t.Fatalf("WriteTrade failed: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	want := "M 100322 100345 5103 7500\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}
}

func TestWriteSnapshot(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	entries := []engine.BookEntry{
		{Side: models.OrderSideBuy, ID: 2, Price: decimal.NewFromInt(100), VisibleQty: decimal.NewFromInt(20)},
		{Side: models.OrderSideSell, ID: 5, Price: decimal.NewFromInt(104), VisibleQty: decimal.NewFromInt(15)},
	}
	if err := w.WriteSnapshot(entries); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	want := "O B 2 100 20\nO S 5 104 15\n\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}
}

func TestWriteSnapshotEmptyBook(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.WriteSnapshot(nil); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if buf.String() != "\n" {
		t.Errorf("Empty book should emit just the terminator, got %q", buf.String())
	}
}
