package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: ACCOUNTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    email VARCHAR(254) NOT NULL,
    first_name VARCHAR(50) NOT NULL,
    last_name VARCHAR(50) NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT FALSE,
    email_verified BOOLEAN NOT NULL DEFAULT FALSE,
    is_staff BOOLEAN NOT NULL DEFAULT FALSE,
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    date_joined TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_user_status CHECK (status IN ('active', 'deleted'))
);

-- Emails are stored lower-cased; the index enforces case-insensitive uniqueness
-- for rows written by anything else.
CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (LOWER(email));
CREATE INDEX IF NOT EXISTS idx_users_created_at ON users (created_at DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: REFERENCE DATA
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS countries (
    id UUID PRIMARY KEY,
    code CHAR(2) NOT NULL UNIQUE,
    name VARCHAR(100) NOT NULL,
    phone_code VARCHAR(20) NOT NULL DEFAULT '',
    flag_url TEXT NOT NULL DEFAULT '',
    population BIGINT NOT NULL DEFAULT 0,
    region VARCHAR(100) NOT NULL DEFAULT '',
    subregion VARCHAR(100) NOT NULL DEFAULT '',
    currency_name VARCHAR(100) NOT NULL DEFAULT '',
    currency_code VARCHAR(10) NOT NULL DEFAULT '',
    timezone VARCHAR(100) NOT NULL DEFAULT '',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_countries_name ON countries (LOWER(name));

CREATE TABLE IF NOT EXISTS cities (
    id UUID PRIMARY KEY,
    country_id UUID NOT NULL REFERENCES countries(id) ON DELETE CASCADE,
    name VARCHAR(100) NOT NULL,
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    population BIGINT,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT cities_name_country_key UNIQUE (name, country_id)
);

CREATE INDEX IF NOT EXISTS idx_cities_country ON cities (country_id, name);
`

const migration002Down = `
DROP TABLE IF EXISTS cities;
DROP TABLE IF EXISTS countries;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: REGISTRATION
// One row per user in every table, keyed by user_id.
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS registration_steps (
    user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    current_step SMALLINT NOT NULL DEFAULT 1,
    last_visited TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    progress_notes TEXT NOT NULL DEFAULT '',

    CONSTRAINT valid_current_step CHECK (current_step BETWEEN 1 AND 8)
);

CREATE TABLE IF NOT EXISTS registration_status (
    user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    is_completed BOOLEAN NOT NULL DEFAULT FALSE,
    completion_date TIMESTAMP WITH TIME ZONE,
    progress_notes TEXT NOT NULL DEFAULT '',
    last_updated TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT completion_date_iff_completed CHECK (is_completed = (completion_date IS NOT NULL))
);

CREATE TABLE IF NOT EXISTS personal_information (
    user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    date_of_birth DATE NOT NULL,
    gender VARCHAR(10) NOT NULL,
    phone_number VARCHAR(20) NOT NULL,
    nationality_id UUID NOT NULL REFERENCES countries(id),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_gender CHECK (gender IN ('Male', 'Female', 'Other'))
);

CREATE TABLE IF NOT EXISTS address_details (
    user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    street_address VARCHAR(255) NOT NULL,
    apartment_suite VARCHAR(50) NOT NULL DEFAULT '',
    city_id UUID NOT NULL REFERENCES cities(id),
    country_id UUID NOT NULL REFERENCES countries(id),
    state VARCHAR(100) NOT NULL DEFAULT '',
    postal_code VARCHAR(10) NOT NULL,
    phone_number VARCHAR(20) NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS educational_background (
    user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    degree VARCHAR(20) NOT NULL,
    institution VARCHAR(255) NOT NULL,
    field_of_study VARCHAR(255) NOT NULL DEFAULT '',
    graduation_year INTEGER NOT NULL,
    honors VARCHAR(255) NOT NULL DEFAULT '',
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration003Down = `
DROP TABLE IF EXISTS educational_background;
DROP TABLE IF EXISTS address_details;
DROP TABLE IF EXISTS personal_information;
DROP TABLE IF EXISTS registration_status;
DROP TABLE IF EXISTS registration_steps;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: COURSES AND PAYMENTS
// Amounts are stored in cents.
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS courses (
    id UUID PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    fee_cents BIGINT NOT NULL,
    duration VARCHAR(50) NOT NULL DEFAULT '',
    discount_percentage SMALLINT NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT courses_name_key UNIQUE (name),
    CONSTRAINT valid_fee CHECK (fee_cents >= 0),
    CONSTRAINT valid_discount CHECK (discount_percentage BETWEEN 0 AND 100)
);

CREATE TABLE IF NOT EXISTS course_selections (
    user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    course_ids UUID[] NOT NULL,
    study_duration INTEGER NOT NULL DEFAULT 0,
    subtotal_cents BIGINT NOT NULL,
    discount_percentage SMALLINT NOT NULL DEFAULT 0,
    discount_cents BIGINT NOT NULL DEFAULT 0,
    total_cents BIGINT NOT NULL,
    payment_status VARCHAR(20) NOT NULL DEFAULT 'Pending',
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_selection_payment_status CHECK (payment_status IN ('Pending', 'Completed', 'Failed'))
);

CREATE TABLE IF NOT EXISTS payments (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    method VARCHAR(20) NOT NULL,
    amount_cents BIGINT NOT NULL,
    transaction_id VARCHAR(255),
    status VARCHAR(20) NOT NULL,
    failure_reason TEXT NOT NULL DEFAULT '',
    gateway_response JSONB,
    payment_date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT payments_transaction_id_key UNIQUE (transaction_id),
    CONSTRAINT valid_payment_method CHECK (method IN ('stripe', 'paypal', 'googlepay')),
    CONSTRAINT valid_payment_status CHECK (status IN ('Pending', 'Completed', 'Failed', 'Refunded'))
);

CREATE INDEX IF NOT EXISTS idx_payments_user_date ON payments (user_id, payment_date DESC);
CREATE INDEX IF NOT EXISTS idx_payments_completed ON payments (user_id) WHERE status = 'Completed';
`

const migration004Down = `
DROP TABLE IF EXISTS payments;
DROP TABLE IF EXISTS course_selections;
DROP TABLE IF EXISTS courses;
`
