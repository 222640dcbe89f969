package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"streamqos/pkg/model"
)

func Run(cfg Config) error {
	return run(cfg, os.Stdout)
}

func run(cfg Config, out io.Writer) error {
	u, err := url.Parse(cfg.Server)
	if err != nil {
		return fmt.Errorf("server 参数非法：%w", err)
	}
	u.Path = "/api/v1/query"
	q := u.Query()
	switch {
	case cfg.Stream != "":
		q.Set("stream", cfg.Stream)
	case cfg.Agent != "":
		q.Set("agent", cfg.Agent)
	}
	if cfg.Limit > 0 {
		q.Set("limit", strconv.Itoa(cfg.Limit))
	}
	u.RawQuery = q.Encode()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(u.String())
	if err != nil {
		return fmt.Errorf("请求失败：%w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("查询失败：status=%s body=%s", resp.Status, string(b))
	}

	var rows []model.Sample
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return fmt.Errorf("解析响应 JSON 失败：%w", err)
	}

	renderTable(out, rows, model.DefaultThresholds())
	return nil
}

func renderTable(out io.Writer, rows []model.Sample, th model.Thresholds) {
	t := tablewriter.NewWriter(out)
	t.SetHeader([]string{"Time", "Agent", "Stream", "Jitter(ms)", "Delay(ms)", "Latency(ms)", "Bitrate(Mbps)", "Loss(%)", "Lost", "Score", "Grade", "Issues"})
	t.SetAutoWrapText(false)
	t.SetRowLine(false)

	for _, r := range rows {
		a := model.Assess(r.Metrics(), th)
		grade := a.Grade.String()
		if !r.Fresh {
			// 指标已过期，评分只作参考
			grade += "*"
		}
		t.Append([]string{
			r.Timestamp.Local().Format(time.DateTime),
			r.Agent,
			r.Stream,
			fmt.Sprintf("%.2f", r.Jitter),
			fmt.Sprintf("%.2f", r.Delay),
			fmt.Sprintf("%.2f", r.Latency),
			fmt.Sprintf("%.3f", r.Bitrate),
			fmt.Sprintf("%.2f", r.PacketLoss),
			strconv.FormatUint(r.LostPackets, 10),
			fmt.Sprintf("%.0f", a.Score),
			grade,
			strings.Join(a.Issues, "; "),
		})
	}
	t.Render()
}
