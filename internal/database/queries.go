package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

func (db *PgChatRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Account{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO accounts (id, username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, now(), now()) RETURNING id, username, email, created_at, updated_at",
		uuid.NewString(),
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
	)

	var a Account
	err = res.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}

	_, err = tx.Exec(
		"INSERT INTO profiles (account_id, full_name, username, avatar_url) VALUES ($1, $2, $3, '')",
		a.Id,
		params.FullName,
		params.Username,
	)
	if err != nil {
		return Account{}, err
	}

	if err = tx.Commit(); err != nil {
		return Account{}, err
	}

	return a, nil
}

func (db *PgChatRepository) GetAccountById(accountId string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgChatRepository) GetAccountByEmail(email string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.PasswordHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgChatRepository) GetProfile(accountId string) (Profile, error) {
	row := db.conn.QueryRow(
		"SELECT account_id, full_name, username, avatar_url FROM profiles "+
			"WHERE account_id = $1 LIMIT 1",
		accountId,
	)

	var p Profile
	err := row.Scan(
		&p.AccountId,
		&p.FullName,
		&p.Username,
		&p.AvatarUrl,
	)

	return p, err
}

func (db *PgChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO chat_rooms (id, name, is_group, created_by, created_at) "+
			"VALUES ($1, $2, $3, $4, now()) RETURNING id, name, is_group, created_by, created_at",
		params.Id,
		params.Name,
		params.IsGroup,
		params.CreatedBy,
	)

	var room Room
	err = res.Scan(
		&room.Id,
		&room.Name,
		&room.IsGroup,
		&room.CreatedBy,
		&room.CreatedAt,
	)
	if err != nil {
		return Room{}, err
	}

	for _, accountId := range params.Participants {
		_, err = tx.Exec(
			"INSERT INTO chat_participants (room_id, account_id, created_at) "+
				"VALUES ($1, $2, now()) ON CONFLICT DO NOTHING",
			room.Id,
			accountId,
		)
		if err != nil {
			return Room{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgChatRepository) GetRoomById(roomId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, is_group, created_by, created_at FROM chat_rooms "+
			"WHERE id = $1 LIMIT 1",
		roomId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.IsGroup,
		&room.CreatedBy,
		&room.CreatedAt,
	)

	return room, err
}

func (db *PgChatRepository) ListRoomsForAccount(accountId string) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT r.id, r.name, r.is_group, r.created_by, r.created_at "+
			"FROM chat_rooms r JOIN chat_participants p ON p.room_id = r.id "+
			"WHERE p.account_id = $1 ORDER BY r.created_at",
		accountId,
	)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(
			&room.Id,
			&room.Name,
			&room.IsGroup,
			&room.CreatedBy,
			&room.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PgChatRepository) IsParticipant(roomId, accountId string) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM chat_participants WHERE room_id = $1 AND account_id = $2)",
		roomId,
		accountId,
	)

	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

// CreateMessage appends a message to a room. The store assigns the id and
// creation time and joins the sender's display fields into the result.
func (db *PgChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	res := db.conn.QueryRow(
		"WITH m AS ("+
			"INSERT INTO messages (id, room_id, sender_id, content, message_type, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, now()) "+
			"RETURNING id, room_id, sender_id, content, message_type, created_at"+
			") SELECT m.id, m.room_id, m.sender_id, m.content, m.message_type, m.created_at, "+
			"p.full_name, p.username, p.avatar_url "+
			"FROM m JOIN profiles p ON p.account_id = m.sender_id",
		uuid.NewString(),
		params.RoomId,
		params.SenderId,
		params.Content,
		params.MessageType,
	)

	var msg Message
	err := res.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.SenderId,
		&msg.Content,
		&msg.MessageType,
		&msg.CreatedAt,
		&msg.Sender.FullName,
		&msg.Sender.Username,
		&msg.Sender.AvatarUrl,
	)
	if err != nil {
		return Message{}, fmt.Errorf("create message: %w", err)
	}
	msg.Sender.AccountId = msg.SenderId

	return msg, nil
}

func (db *PgChatRepository) GetMessages(roomId string, before time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT m.id, m.room_id, m.sender_id, m.content, m.message_type, m.created_at, " +
		"p.full_name, p.username, p.avatar_url " +
		"FROM messages m JOIN profiles p ON p.account_id = m.sender_id " +
		"WHERE m.room_id = $1"
	args := []any{roomId}

	if !before.IsZero() {
		query += " AND m.created_at < $2"
		args = append(args, before)
	}
	query += fmt.Sprintf(" ORDER BY m.created_at DESC LIMIT %d", limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.Id,
			&msg.RoomId,
			&msg.SenderId,
			&msg.Content,
			&msg.MessageType,
			&msg.CreatedAt,
			&msg.Sender.FullName,
			&msg.Sender.Username,
			&msg.Sender.AvatarUrl,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		msg.Sender.AccountId = msg.SenderId
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	// rows are fetched newest-first for the limit, callers want them oldest-first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation, used to map duplicate registrations to a client error.
func IsUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
