package postgres

// schema is applied by EnsureSchema. Statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS providers (
    id          BIGSERIAL PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS manufacturers (
    id          BIGSERIAL PRIMARY KEY,
    name        TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT manufacturers_name_key UNIQUE (name)
);

CREATE TABLE IF NOT EXISTS dealers (
    id                  BIGSERIAL PRIMARY KEY,
    name                TEXT NOT NULL,
    provider_id         BIGINT REFERENCES providers(id) ON DELETE SET NULL,
    manufacturer_id     BIGINT REFERENCES manufacturers(id) ON DELETE SET NULL,
    currency            SMALLINT NOT NULL DEFAULT 0,
    csv_separator       TEXT NOT NULL DEFAULT ';',
    column_options      JSONB,
    file_type           SMALLINT,
    last_uploaded_file  TEXT NOT NULL DEFAULT '',
    last_upload         TIMESTAMPTZ,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS xls_products (
    id               BIGSERIAL PRIMARY KEY,
    dealer_id        BIGINT NOT NULL REFERENCES dealers(id) ON DELETE CASCADE,
    manufacturer_id  BIGINT REFERENCES manufacturers(id) ON DELETE SET NULL,
    currency         SMALLINT,
    amount           BIGINT NOT NULL DEFAULT 0,
    price            BIGINT,
    prices           JSONB NOT NULL DEFAULT '[]',
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
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS xls_products_dealer_id_idx ON xls_products (dealer_id);

CREATE TABLE IF NOT EXISTS import_runs (
    id            UUID PRIMARY KEY,
    dealer_id     BIGINT NOT NULL,
    file_name     TEXT NOT NULL,
    file_type     SMALLINT NOT NULL,
    status        TEXT NOT NULL,
    total_rows    INTEGER NOT NULL DEFAULT 0,
    kept_rows     INTEGER NOT NULL DEFAULT 0,
    assembled     INTEGER NOT NULL DEFAULT 0,
    deleted       BIGINT NOT NULL DEFAULT 0,
    inserted      BIGINT NOT NULL DEFAULT 0,
    missing_name  INTEGER NOT NULL DEFAULT 0,
    coercions     INTEGER NOT NULL DEFAULT 0,
    error         TEXT NOT NULL DEFAULT '',
    started_at    TIMESTAMPTZ NOT NULL,
    duration_ms   BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS import_runs_dealer_idx ON import_runs (dealer_id, started_at DESC);
`
