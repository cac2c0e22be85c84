package db

const schema = `
CREATE TABLE IF NOT EXISTS installed_kegs (
    name TEXT PRIMARY KEY,
    version TEXT NOT NULL,
    store_key TEXT NOT NULL,
    installed_at TIMESTAMP NOT NULL,
    explicit BOOLEAN NOT NULL DEFAULT 1,
    pinned BOOLEAN NOT NULL DEFAULT 0,
    options TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS store_refs (
    store_key TEXT PRIMARY KEY,
    ref_count INTEGER NOT NULL DEFAULT 0 CHECK(ref_count >= 0)
);

CREATE TABLE IF NOT EXISTS keg_files (
    name TEXT NOT NULL,
    version TEXT NOT NULL,
    link_path TEXT NOT NULL,
    target_path TEXT NOT NULL,
    PRIMARY KEY (name, version, link_path)
);

CREATE TABLE IF NOT EXISTS taps (
    name TEXT PRIMARY KEY,
    url TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS services (
    name TEXT PRIMARY KEY,
    formula TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'stopped',
    pid INTEGER,
    started_at TIMESTAMP,
    FOREIGN KEY (formula) REFERENCES installed_kegs(name) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_kegs_store_key ON installed_kegs(store_key);
CREATE INDEX IF NOT EXISTS idx_keg_files_name ON keg_files(name);
`
