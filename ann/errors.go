package ann

import "errors"

// ErrNotTrained is returned by Add/Search when an index recipe that
// requires training (IVFPQ, IVFHNSW) has not yet had Train called.
var ErrNotTrained = errors.New("ann: index not trained")
