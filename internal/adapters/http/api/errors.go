package api

import (
	"fmt"

	"github.com/okian/exodetect/internal/domain/prediction"
)

// Upload errors. Both are malformed requests.
var (
	ErrNoFile  = fmt.Errorf("%w: no file uploaded", prediction.ErrMalformedRequest)
	ErrNotCSV  = fmt.Errorf("%w: invalid file type, please upload a CSV", prediction.ErrMalformedRequest)
	ErrNoInput = fmt.Errorf("%w: no input data provided", prediction.ErrMalformedRequest)
)
