package sqlite

const schema = `
BEGIN TRANSACTION;

CREATE TABLE
	IF NOT EXISTS profiles (
		id TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password TEXT NOT NULL,
		display_name TEXT,
		bio TEXT NOT NULL DEFAULT '',
		photo_url TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'semi-admin', 'admin')),
		created datetime NOT NULL,
		updated datetime NOT NULL,
		PRIMARY KEY ("id")
	);

CREATE TABLE
	IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		created datetime NOT NULL,
		expires datetime NOT NULL,
		FOREIGN KEY (profile_id) REFERENCES profiles (id) ON DELETE CASCADE
	);

CREATE TABLE
	IF NOT EXISTS follows (
		follower TEXT NOT NULL,
		target TEXT NOT NULL,
		date datetime NOT NULL,
		PRIMARY KEY (follower, target),
		CHECK (follower != target),
		FOREIGN KEY (follower) REFERENCES profiles (id) ON DELETE CASCADE,
		FOREIGN KEY (target) REFERENCES profiles (id) ON DELETE CASCADE
	);

CREATE TABLE
	IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		preview TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		poet_name TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL,
		created_at datetime NOT NULL,
		FOREIGN KEY (user_id) REFERENCES profiles (id) ON DELETE CASCADE
	);

CREATE INDEX IF NOT EXISTS "Notes Creation Index" ON "notes" ("created_at" DESC);

CREATE TABLE
	IF NOT EXISTS applauses (
		user_id TEXT NOT NULL,
		note_id TEXT NOT NULL,
		date datetime NOT NULL,
		PRIMARY KEY (user_id, note_id),
		FOREIGN KEY (user_id) REFERENCES profiles (id) ON DELETE CASCADE,
		FOREIGN KEY (note_id) REFERENCES notes (id) ON DELETE CASCADE
	);

CREATE INDEX IF NOT EXISTS "Applauses Note Index" ON "applauses" ("note_id");

CREATE TABLE
	IF NOT EXISTS poem_submissions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		poet_name TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending')),
		submitted_at datetime NOT NULL,
		FOREIGN KEY (user_id) REFERENCES profiles (id) ON DELETE CASCADE
	);

COMMIT;
`
