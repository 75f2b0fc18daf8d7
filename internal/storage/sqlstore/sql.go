package sqlstore

// The statements below are shared by MySQL and SQLite; both accept REPLACE
// and the same column types.

const createStoreSQL = `
CREATE TABLE IF NOT EXISTS session_store (
  k          VARCHAR(191) NOT NULL PRIMARY KEY,
  v          TEXT         NOT NULL,
  updated_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP
)
`

const putSQL = `REPLACE INTO session_store (k, v) VALUES (?, ?)`

const getSQL = `SELECT v FROM session_store WHERE k = ?`

const deleteSQL = `DELETE FROM session_store WHERE k = ?`
