package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/okian/botpulse/internal/domain/model"
)

// queryDate reads a YYYY-MM-DD query parameter in loc. An absent parameter
// is the zero time.
func queryDate(r *http.Request, name string, loc *time.Location) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(model.DateLayout, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD, got %q", name, v)
	}
	return t, nil
}
