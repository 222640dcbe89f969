package app

import "time"

type Config struct {
	Server string
	// Stream 与 Agent 都为空时查询每条流的最新样本。
	Stream  string
	Agent   string
	Limit   int
	Timeout time.Duration
}
