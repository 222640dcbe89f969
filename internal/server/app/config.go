package app

type Config struct {
	ListenAddr string
	// DBDriver 为 duckdb（默认）或 sqlite。
	DBDriver string
	DBPath   string
}
