package db

// Timestamps are unix milliseconds in both dialects.

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS items (
  id TEXT PRIMARY KEY,
  module_id TEXT NOT NULL,
  difficulty INTEGER NOT NULL CHECK (difficulty BETWEEN 1 AND 5),
  text TEXT NOT NULL,
  options_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_items_module_difficulty ON items(module_id, difficulty);

CREATE TABLE IF NOT EXISTS evaluation_sessions (
  id TEXT PRIMARY KEY,
  student_id TEXT NOT NULL,
  module_id TEXT NOT NULL,
  questions_answered_json TEXT NOT NULL,
  pending_item TEXT NOT NULL DEFAULT '',
  current_mastery INTEGER NOT NULL CHECK (current_mastery BETWEEN 0 AND 100),
  correct INTEGER NOT NULL DEFAULT 0,
  incorrect INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL CHECK (status IN ('in_progress','completed')),
  completion_reason TEXT NOT NULL DEFAULT '',
  rules_json TEXT NOT NULL,
  version INTEGER NOT NULL DEFAULT 1,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  completed_at INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_sessions_active
  ON evaluation_sessions(student_id, module_id) WHERE status = 'in_progress';

CREATE TABLE IF NOT EXISTS audit_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL,
  student_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  module_id TEXT NOT NULL,
  is_correct INTEGER NOT NULL,
  difficulty INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_audit_student_module ON audit_log(student_id, module_id);

CREATE TABLE IF NOT EXISTS mastery_records (
  student_id TEXT NOT NULL,
  module_id TEXT NOT NULL,
  highest_score INTEGER NOT NULL CHECK (highest_score BETWEEN 0 AND 100),
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (student_id, module_id)
);

CREATE TABLE IF NOT EXISTS sections (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  instructor_id TEXT NOT NULL,
  criteria_json TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS section_modules (
  section_id TEXT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
  module_id TEXT NOT NULL,
  position INTEGER NOT NULL DEFAULT 0,
  published INTEGER NOT NULL DEFAULT 1,
  PRIMARY KEY (section_id, module_id)
);

CREATE TABLE IF NOT EXISTS assignments (
  id TEXT PRIMARY KEY,
  section_id TEXT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
  title TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS submissions (
  id TEXT PRIMARY KEY,
  assignment_id TEXT NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  submitted_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_submissions_student ON submissions(student_id, assignment_id);

CREATE TABLE IF NOT EXISTS enrollments (
  section_id TEXT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'enrolled',
  reason TEXT NOT NULL DEFAULT '',
  graded_at INTEGER,
  PRIMARY KEY (section_id, student_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS items (
  id TEXT PRIMARY KEY,
  module_id TEXT NOT NULL,
  difficulty INTEGER NOT NULL CHECK (difficulty BETWEEN 1 AND 5),
  text TEXT NOT NULL,
  options_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_items_module_difficulty ON items(module_id, difficulty);

CREATE TABLE IF NOT EXISTS evaluation_sessions (
  id TEXT PRIMARY KEY,
  student_id TEXT NOT NULL,
  module_id TEXT NOT NULL,
  questions_answered_json TEXT NOT NULL,
  pending_item TEXT NOT NULL DEFAULT '',
  current_mastery INTEGER NOT NULL CHECK (current_mastery BETWEEN 0 AND 100),
  correct INTEGER NOT NULL DEFAULT 0,
  incorrect INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL CHECK (status IN ('in_progress','completed')),
  completion_reason TEXT NOT NULL DEFAULT '',
  rules_json TEXT NOT NULL,
  version INTEGER NOT NULL DEFAULT 1,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  completed_at BIGINT
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_sessions_active
  ON evaluation_sessions(student_id, module_id) WHERE status = 'in_progress';

CREATE TABLE IF NOT EXISTS audit_log (
  seq BIGSERIAL PRIMARY KEY,
  session_id TEXT NOT NULL,
  student_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  module_id TEXT NOT NULL,
  is_correct BOOLEAN NOT NULL,
  difficulty INTEGER NOT NULL,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_audit_student_module ON audit_log(student_id, module_id);

CREATE TABLE IF NOT EXISTS mastery_records (
  student_id TEXT NOT NULL,
  module_id TEXT NOT NULL,
  highest_score INTEGER NOT NULL CHECK (highest_score BETWEEN 0 AND 100),
  updated_at BIGINT NOT NULL,
  PRIMARY KEY (student_id, module_id)
);

CREATE TABLE IF NOT EXISTS sections (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  instructor_id TEXT NOT NULL,
  criteria_json TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS section_modules (
  section_id TEXT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
  module_id TEXT NOT NULL,
  position INTEGER NOT NULL DEFAULT 0,
  published BOOLEAN NOT NULL DEFAULT TRUE,
  PRIMARY KEY (section_id, module_id)
);

CREATE TABLE IF NOT EXISTS assignments (
  id TEXT PRIMARY KEY,
  section_id TEXT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
  title TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS submissions (
  id TEXT PRIMARY KEY,
  assignment_id TEXT NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  submitted_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_submissions_student ON submissions(student_id, assignment_id);

CREATE TABLE IF NOT EXISTS enrollments (
  section_id TEXT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'enrolled',
  reason TEXT NOT NULL DEFAULT '',
  graded_at BIGINT,
  PRIMARY KEY (section_id, student_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
