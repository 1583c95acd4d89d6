package checksum

import (
	"crypto/md5"
	"crypto/sha256"
	"fmt"
)

// TargetID derives the stable identifier of a search target from its URL.
// Dataset and history file names are derived from it.
func TargetID(url string) string {
	sum := md5.Sum([]byte(url))
	return fmt.Sprintf("%x", sum)
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateRecordHash returns the hex SHA256 of "url|title".
func (g *Generator) GenerateRecordHash(url, title string) string {
	content := fmt.Sprintf("%s|%s", url, title)
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hash)
}
