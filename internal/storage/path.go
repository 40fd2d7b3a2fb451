package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var (
	tableNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,128}$`)
	objectIDPattern  = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
)

const snapshotFileName = "latest.parquet"

// BuildUploadPath returns the archive key for a raw upload:
// uploads/<table>/<upload id>/<file name>.
func BuildUploadPath(tableName, uploadID, fileName string) (string, error) {
	if err := validateTableName(tableName); err != nil {
		return "", err
	}
	if !objectIDPattern.MatchString(uploadID) {
		return "", fmt.Errorf("invalid upload id: %q", uploadID)
	}
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), `\`, "/"))
	if !objectIDPattern.MatchString(base) {
		return "", fmt.Errorf("invalid file name: %q", fileName)
	}
	return path.Join("uploads", tableName, uploadID, base), nil
}

// BuildSnapshotPath returns the key of the table's current Parquet snapshot.
// Each upload overwrites it, matching the replace-load semantics.
func BuildSnapshotPath(tableName string) (string, error) {
	if err := validateTableName(tableName); err != nil {
		return "", err
	}
	return path.Join("snapshots", tableName, snapshotFileName), nil
}

func validateTableName(value string) error {
	if !tableNamePattern.MatchString(value) {
		return fmt.Errorf("invalid table name: %q", value)
	}
	return nil
}
