package backup

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// ExpandTemplate fills a directory template for a file created at t.
// {month} and {day} are always two digits; {month:02d} and {day:02d} are
// accepted as aliases. {name} is the backup name. The result is a slash
// separated relative path.
func ExpandTemplate(tmpl string, t time.Time, name string) string {
	month := fmt.Sprintf("%02d", int(t.Month()))
	day := fmt.Sprintf("%02d", t.Day())

	r := strings.NewReplacer(
		"{year}", fmt.Sprintf("%04d", t.Year()),
		"{month:02d}", month,
		"{month}", month,
		"{day:02d}", day,
		"{day}", day,
		"{name}", name,
	)

	return path.Clean(r.Replace(tmpl))
}
