// Package outbox delivers update messages to connected users.
//
// Each registered user owns a bounded Mailbox. Sending never blocks: when a
// mailbox is full its oldest message is dropped and counted. A Group scopes
// delivery to the users of one open file and stamps every delivery with
// that file's path.
package outbox
