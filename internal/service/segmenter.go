package service

import (
	"fmt"

	"trait-consensus/internal/domain"
)

// SegmentItems parte el cuestionario en lotes de tamano fijo, sin reordenar.
// El ultimo lote puede quedar incompleto pero nunca se descarta.
func SegmentItems(items []domain.QuestionItem, size int) ([]domain.Segment, error) {
	if size < 1 {
		return nil, fmt.Errorf("segment size must be >= 1, got %d", size)
	}
	segments := make([]domain.Segment, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		idx := len(segments)
		batch := make([]domain.QuestionItem, end-start)
		copy(batch, items[start:end])
		segments = append(segments, domain.Segment{
			ID:    domain.SegmentID(idx),
			Index: idx,
			Items: batch,
		})
	}
	return segments, nil
}
