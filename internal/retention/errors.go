package retention

import "errors"

// ErrNoStore means the service was built without a store.
var ErrNoStore = errors.New("retention: no store configured")
