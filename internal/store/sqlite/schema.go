package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS providers (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL DEFAULT '',
    updated_at  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS manufacturers (
    id    INTEGER PRIMARY KEY AUTOINCREMENT,
    name  TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS dealers (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    name                TEXT NOT NULL,
    provider_id         INTEGER REFERENCES providers(id) ON DELETE SET NULL,
    manufacturer_id     INTEGER REFERENCES manufacturers(id) ON DELETE SET NULL,
    currency            INTEGER NOT NULL DEFAULT 0,
    csv_separator       TEXT NOT NULL DEFAULT ';',
    column_options      BLOB,
    file_type           INTEGER,
    last_uploaded_file  TEXT NOT NULL DEFAULT '',
    last_upload         TEXT
);

CREATE TABLE IF NOT EXISTS xls_products (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    dealer_id        INTEGER NOT NULL REFERENCES dealers(id) ON DELETE CASCADE,
    manufacturer_id  INTEGER REFERENCES manufacturers(id) ON DELETE SET NULL,
    currency         INTEGER,
    amount           INTEGER NOT NULL DEFAULT 0,
    price            INTEGER,
    prices           TEXT NOT NULL DEFAULT '[]',
    name             TEXT NOT NULL,
    article          TEXT,
    created_date     TEXT,
    weight           TEXT,
    country          TEXT,
    description      TEXT,
    min_order        TEXT,
    amount_in_pack   TEXT,
    multiplicity     TEXT,
    delivery_time    TEXT,
    pdf_link         TEXT,
    rohc             TEXT,
    provider_code    TEXT,
    cover            TEXT,
    package          TEXT,
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS xls_products_dealer_id_idx ON xls_products (dealer_id);

CREATE TABLE IF NOT EXISTS import_runs (
    id            TEXT PRIMARY KEY,
    dealer_id     INTEGER NOT NULL,
    file_name     TEXT NOT NULL,
    file_type     INTEGER NOT NULL,
    status        TEXT NOT NULL,
    total_rows    INTEGER NOT NULL DEFAULT 0,
    kept_rows     INTEGER NOT NULL DEFAULT 0,
    assembled     INTEGER NOT NULL DEFAULT 0,
    deleted       INTEGER NOT NULL DEFAULT 0,
    inserted      INTEGER NOT NULL DEFAULT 0,
    missing_name  INTEGER NOT NULL DEFAULT 0,
    coercions     INTEGER NOT NULL DEFAULT 0,
    error         TEXT NOT NULL DEFAULT '',
    started_at    TEXT NOT NULL,
    duration_ms   INTEGER NOT NULL DEFAULT 0
);
`
