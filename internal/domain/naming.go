package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// maxResourceName is the limit shared by Postgres identifiers and S3 bucket names.
const maxResourceName = 63

// RealmName returns the identity realm owned by the tenant.
func RealmName(slug string) string {
	return slug
}

// SchemaName returns the database schema owned by the tenant.
func SchemaName(slug string) string {
	return fitName("tenant_"+strings.ReplaceAll(slug, "-", "_"), "_")
}

// BucketName returns the storage bucket owned by the tenant.
func BucketName(prefix, slug string) string {
	return fitName(prefix+slug, "-")
}

// fitName truncates long names and appends a hash of the full name so that
// distinct slugs never collide after truncation.
func fitName(name, sep string) string {
	if len(name) <= maxResourceName {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	suffix := hex.EncodeToString(sum[:4])
	head := strings.TrimRight(name[:maxResourceName-len(suffix)-1], "-_")
	return head + sep + suffix
}

// InvitationDigest is the hex SHA-256 of an invitation token. Tenants record
// the digest; a presented token is redeemed by comparing digests.
func InvitationDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
