package feed

import (
	"bufio"
	"fmt"
	"io"

	"github.com/icebook/icebook/engine"
)

// Writer encodes trade and snapshot records onto the main output stream.
type Writer struct {
	w *bufio.Writer
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(out)}
}

// WriteTrade emits one aggregated trade record:
// M <buy_id> <sell_id> <price> <qty>
func (w *Writer) WriteTrade(trade *engine.Trade) error {
	_, err := fmt.Fprintf(w.w, "M %d %d %s %s\n",
		trade.BuyOrderID, trade.SellOrderID, trade.Price, trade.Quantity)
	return err
}

// WriteBookEntry emits one snapshot record:
// O <B|S> <id> <price> <visible_qty>
func (w *Writer) WriteBookEntry(entry engine.BookEntry) error {
	_, err := fmt.Fprintf(w.w, "O %s %d %s %s\n",
		entry.Side.Letter(), entry.ID, entry.Price, entry.VisibleQty)
	return err
}

// WriteSnapshot emits the full book dump followed by the blank line that
// terminates the output.
func (w *Writer) WriteSnapshot(entries []engine.BookEntry) error {
	for _, entry := range entries {
		if err := w.WriteBookEntry(entry); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w.w)
	return err
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}
