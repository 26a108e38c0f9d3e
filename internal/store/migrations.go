package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// Columns declared JSON hold serialized arrays. Describe reports them as
// list columns.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create knowledge tables",
		SQL: `
			CREATE TABLE chords (
				id                  INTEGER PRIMARY KEY AUTOINCREMENT,
				name                TEXT NOT NULL UNIQUE,
				root                TEXT NOT NULL,
				chord_type          TEXT NOT NULL,
				formula             TEXT NOT NULL,
				intervals           JSON NOT NULL DEFAULT '[]',
				category            TEXT NOT NULL,
				description         TEXT NOT NULL DEFAULT '',
				common_progressions JSON NOT NULL DEFAULT '[]',
				difficulty          INTEGER NOT NULL DEFAULT 1,
				tags                JSON NOT NULL DEFAULT '[]'
			);
			CREATE INDEX idx_chords_category ON chords (category, chord_type);

			CREATE TABLE scales (
				id                  INTEGER PRIMARY KEY AUTOINCREMENT,
				name                TEXT NOT NULL UNIQUE,
				scale_type          TEXT NOT NULL,
				parent_scale        TEXT NOT NULL DEFAULT '',
				degree              INTEGER NOT NULL DEFAULT 0,
				formula             TEXT NOT NULL,
				intervals           JSON NOT NULL DEFAULT '[]',
				category            TEXT NOT NULL,
				chord_compatibility JSON NOT NULL DEFAULT '[]',
				character           TEXT NOT NULL DEFAULT '',
				description         TEXT NOT NULL DEFAULT '',
				difficulty          INTEGER NOT NULL DEFAULT 1,
				tags                JSON NOT NULL DEFAULT '[]'
			);

			CREATE TABLE techniques (
				id                   INTEGER PRIMARY KEY AUTOINCREMENT,
				name                 TEXT NOT NULL UNIQUE,
				category             TEXT NOT NULL,
				subcategory          TEXT NOT NULL DEFAULT '',
				description          TEXT NOT NULL,
				difficulty           INTEGER NOT NULL DEFAULT 1,
				famous_practitioners JSON NOT NULL DEFAULT '[]',
				tags                 JSON NOT NULL DEFAULT '[]'
			);

			CREATE TABLE jazz_standards (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				title            TEXT NOT NULL UNIQUE,
				composer         TEXT NOT NULL,
				year             INTEGER NOT NULL DEFAULT 0,
				"key"            TEXT NOT NULL,
				form             TEXT NOT NULL DEFAULT '',
				measures         INTEGER NOT NULL DEFAULT 32,
				key_concepts     JSON NOT NULL DEFAULT '[]',
				suggested_scales JSON NOT NULL DEFAULT '[]',
				difficulty       INTEGER NOT NULL DEFAULT 1,
				tags             JSON NOT NULL DEFAULT '[]'
			);

			CREATE TABLE guitar_history (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				title       TEXT NOT NULL,
				era         TEXT NOT NULL,
				category    TEXT NOT NULL,
				summary     TEXT NOT NULL DEFAULT '',
				content     TEXT NOT NULL,
				key_figures JSON NOT NULL DEFAULT '[]',
				instruments JSON NOT NULL DEFAULT '[]',
				materials   JSON NOT NULL DEFAULT '[]',
				tags        JSON NOT NULL DEFAULT '[]'
			);
			CREATE INDEX idx_history_era ON guitar_history (era, category);
		`,
	},
	{
		Version: 2,
		Name:    "create sessions",
		SQL: `
			CREATE TABLE sessions (
				id          TEXT PRIMARY KEY,
				skill_level TEXT NOT NULL DEFAULT 'intermediate',
				topic       TEXT,
				activity    TEXT,
				metadata    TEXT NOT NULL DEFAULT '{}',
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			);

			CREATE TABLE session_turns (
				session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				seq        INTEGER NOT NULL,
				role       TEXT NOT NULL,
				body       TEXT NOT NULL,
				responder  TEXT NOT NULL DEFAULT '',
				timestamp  TEXT NOT NULL,
				PRIMARY KEY (session_id, seq)
			);

			CREATE TABLE session_trail (
				session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				seq        INTEGER NOT NULL,
				responder  TEXT NOT NULL,
				PRIMARY KEY (session_id, seq)
			);
		`,
	},
	{
		Version: 3,
		Name:    "create benchmarks",
		SQL: `
			CREATE TABLE benchmarks (
				id           TEXT PRIMARY KEY,
				phase        TEXT NOT NULL,
				description  TEXT NOT NULL,
				status       TEXT NOT NULL DEFAULT 'pending',
				notes        TEXT NOT NULL DEFAULT '',
				failures     TEXT NOT NULL DEFAULT '[]',
				created_at   TEXT NOT NULL,
				updated_at   TEXT NOT NULL,
				completed_at TEXT
			);
			CREATE INDEX idx_benchmarks_phase ON benchmarks (phase, status);
		`,
	},
}
