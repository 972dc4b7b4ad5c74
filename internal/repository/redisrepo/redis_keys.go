package redisrepo

import "fmt"

const (
	USER_ADMIN       = "user:%s-admin"       // <userID>
	USER_SUPER_ADMIN = "user:%s-super-admin" // <userID>

	STORE_COLLECTION = "%srt:%s"         // <prefix><collection path>
	STORE_CHANGES    = "%srt:changes:%s" // <prefix><collection path>
)

func UserAdminKey(userID string) string {
	return fmt.Sprintf(USER_ADMIN, userID)
}

func UserSuperAdminKey(userID string) string {
	return fmt.Sprintf(USER_SUPER_ADMIN, userID)
}

func StoreCollectionKey(prefix, collection string) string {
	return fmt.Sprintf(STORE_COLLECTION, prefix, collection)
}

func StoreChangesChannel(prefix, collection string) string {
	return fmt.Sprintf(STORE_CHANGES, prefix, collection)
}
