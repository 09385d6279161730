package repositories

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

// isDuplicateEntry reports a unique-key violation, optionally on a key whose
// name contains key.
func isDuplicateEntry(err error, key string) bool {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) || mysqlErr.Number != mysqlDuplicateEntry {
		return false
	}
	return key == "" || strings.Contains(mysqlErr.Message, key)
}
