package ports

import "github.com/CUMTD/Mtd.Kiosk/internal/domain"

// ReadingQueue decouples collectors from the ingestor.
type ReadingQueue interface {
	Enqueue(r domain.Reading) bool
	DequeueBatch(max int) []domain.Reading
	Len() int
}
