package ocr

import "errors"

// ErrDisabled is returned when recognition is requested while the image
// pipeline is switched off (OCR_ENABLED unset) or the worker failed to start.
var ErrDisabled = errors.New("text recognition disabled")
