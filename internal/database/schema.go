package database

// sqliteSchema is applied in order by OpenSQLite. Column names and types
// mirror MySQLSchema so repositories run the same statements on both.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'USER',
		plan TEXT NOT NULL DEFAULT 'free',
		is_banned INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		token_hash TEXT NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS properties (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		city TEXT NOT NULL,
		address TEXT NOT NULL,
		listing_type TEXT NOT NULL,
		price REAL NOT NULL,
		bedrooms INTEGER NOT NULL DEFAULT 0,
		bathrooms INTEGER NOT NULL DEFAULT 0,
		area_sq_m INTEGER NOT NULL DEFAULT 0,
		description TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		is_sold INTEGER NOT NULL DEFAULT 0,
		sold_at DATETIME,
		is_featured INTEGER NOT NULL DEFAULT 0,
		featured_until DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_properties_owner ON properties(user_id, status, is_sold)`,
	`CREATE TABLE IF NOT EXISTS property_images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		property_id INTEGER NOT NULL REFERENCES properties(id),
		file_name TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS saved_properties (
		user_id INTEGER NOT NULL REFERENCES users(id),
		property_id INTEGER NOT NULL REFERENCES properties(id),
		created_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, property_id)
	)`,
	`CREATE TABLE IF NOT EXISTS property_stats (
		property_id INTEGER NOT NULL REFERENCES properties(id),
		stat_date DATE NOT NULL,
		views INTEGER NOT NULL DEFAULT 0,
		saves INTEGER NOT NULL DEFAULT 0,
		contact_clicks INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (property_id, stat_date)
	)`,
}

// MySQLSchema is the production DDL, printed by `listingsctl migrate --print`.
const MySQLSchema = `CREATE TABLE IF NOT EXISTS users (
  id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
  email VARCHAR(255) NOT NULL UNIQUE,
  password_hash VARCHAR(255) NOT NULL,
  role VARCHAR(16) NOT NULL DEFAULT 'USER',
  plan VARCHAR(16) NOT NULL DEFAULT 'free',
  is_banned TINYINT(1) NOT NULL DEFAULT 0,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS refresh_tokens (
  id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
  user_id BIGINT UNSIGNED NOT NULL,
  token_hash CHAR(64) NOT NULL UNIQUE,
  expires_at DATETIME NOT NULL,
  revoked_at DATETIME NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  CONSTRAINT fk_tokens_user FOREIGN KEY (user_id) REFERENCES users(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS properties (
  id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
  user_id BIGINT UNSIGNED NOT NULL,
  title VARCHAR(200) NOT NULL,
  city VARCHAR(120) NOT NULL,
  address VARCHAR(255) NOT NULL,
  listing_type ENUM('sale','rent') NOT NULL,
  price DECIMAL(14,2) NOT NULL,
  bedrooms INT NOT NULL DEFAULT 0,
  bathrooms INT NOT NULL DEFAULT 0,
  area_sq_m INT NOT NULL DEFAULT 0,
  description TEXT NOT NULL,
  status ENUM('pending','approved','rejected') NOT NULL DEFAULT 'pending',
  is_sold TINYINT(1) NOT NULL DEFAULT 0,
  sold_at DATETIME NULL,
  is_featured TINYINT(1) NOT NULL DEFAULT 0,
  featured_until DATETIME NULL,
  created_at DATETIME NOT NULL,
  updated_at DATETIME NOT NULL,
  KEY idx_properties_owner (user_id, status, is_sold),
  KEY idx_properties_status (status, created_at),
  CONSTRAINT fk_properties_user FOREIGN KEY (user_id) REFERENCES users(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS property_images (
  id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
  property_id BIGINT UNSIGNED NOT NULL,
  file_name VARCHAR(255) NOT NULL,
  created_at DATETIME NOT NULL,
  KEY idx_images_property (property_id),
  CONSTRAINT fk_images_property FOREIGN KEY (property_id) REFERENCES properties(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS saved_properties (
  user_id BIGINT UNSIGNED NOT NULL,
  property_id BIGINT UNSIGNED NOT NULL,
  created_at DATETIME NOT NULL,
  PRIMARY KEY (user_id, property_id),
  CONSTRAINT fk_saved_user FOREIGN KEY (user_id) REFERENCES users(id),
  CONSTRAINT fk_saved_property FOREIGN KEY (property_id) REFERENCES properties(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS property_stats (
  property_id BIGINT UNSIGNED NOT NULL,
  stat_date DATE NOT NULL,
  views INT NOT NULL DEFAULT 0,
  saves INT NOT NULL DEFAULT 0,
  contact_clicks INT NOT NULL DEFAULT 0,
  PRIMARY KEY (property_id, stat_date),
  CONSTRAINT fk_stats_property FOREIGN KEY (property_id) REFERENCES properties(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`
