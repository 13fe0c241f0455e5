package store

const schema = `
CREATE TABLE IF NOT EXISTS pending_mutations (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    client_request_id TEXT NOT NULL,
    order_id          TEXT NOT NULL,
    kind              TEXT NOT NULL,
    payload           TEXT NOT NULL,
    created_at        TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS orders (
    id              TEXT PRIMARY KEY,
    code            TEXT NOT NULL DEFAULT '',
    shipping_status TEXT NOT NULL DEFAULT 'unassigned',
    shipper_id      TEXT NOT NULL DEFAULT '',
    address         TEXT NOT NULL DEFAULT '',
    note            TEXT NOT NULL DEFAULT '',
    updated_at      TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
`
