package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrDuplicate は一意制約違反を表す。
var ErrDuplicate = errors.New("duplicate entry")

// mysqlErrDuplicateEntry はMySQLの一意制約違反エラー番号（ER_DUP_ENTRY）。
const mysqlErrDuplicateEntry = 1062

// isDuplicateEntry はドライバエラーが一意制約違反かどうかを判定する。
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry
}
