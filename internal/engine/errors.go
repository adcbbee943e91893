package engine

import "github.com/minisource/jobkeeper/internal/jobkeepererr"

func storeErr(err error, what string) error {
	if err == nil {
		return nil
	}
	return jobkeepererr.Storef(err, what)
}
