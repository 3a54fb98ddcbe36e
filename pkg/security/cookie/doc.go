// Package cookie encodes and decodes secure cookies.
//
// A secure cookie value is an XChaCha20-Poly1305 blob, base64url encoded,
// sealing the cookie value together with its expiry. The cookie name is
// authenticated as additional data, so a value issued for one cookie is
// rejected under another name.
//
// The encryption key is derived from a key file. Initialize creates the key
// file with random content and mode 0600 when it does not exist and refuses
// key files readable by other users.
//
//	codec, err := cookie.Initialize(cookie.Config{KeyFile: path})
//	codec.Set(w, cookie.UserIDCookie, "alice", time.Now().Add(24*time.Hour), false)
//	user, expires, err := codec.Read(r, cookie.UserIDCookie)
package cookie
