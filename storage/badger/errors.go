package badger

import (
	"fmt"

	"github.com/poiesic/yellowbook/storage"
)

var errClosed = fmt.Errorf("badger: %w", storage.ErrStorageClosed)
