package main

import (
	"net/http"
)

func dashboardHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>scopefence</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #1f2937;
            min-height: 100vh;
            padding: 20px;
        }
        .container { max-width: 1200px; margin: 0 auto; }
        .header { text-align: center; color: white; margin-bottom: 30px; }
        .header h1 { font-size: 2.2em; margin-bottom: 8px; }
        .stats-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(220px, 1fr));
            gap: 20px;
            margin-bottom: 30px;
        }
        .card {
            background: white;
            border-radius: 12px;
            padding: 22px;
            box-shadow: 0 4px 6px rgba(0,0,0,0.1);
            margin-bottom: 20px;
        }
        .label { color: #666; font-size: 0.85em; text-transform: uppercase; letter-spacing: 1px; margin-bottom: 8px; }
        .value { font-size: 2.2em; font-weight: bold; color: #333; }
        .value.ok { color: #10b981; }
        .value.bad { color: #ef4444; }
        .card h2 { margin-bottom: 16px; color: #333; font-size: 1.2em; }
        table { width: 100%; border-collapse: collapse; }
        th { text-align: left; padding: 10px; background: #f3f4f6; color: #666; font-size: 0.8em; text-transform: uppercase; }
        td { padding: 10px; border-bottom: 1px solid #e5e7eb; }
        .bar { height: 8px; background: #e5e7eb; border-radius: 4px; overflow: hidden; }
        .bar div { height: 100%; background: #3b82f6; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>scopefence</h1>
            <p>Admissions by scope, refreshed every 2s</p>
        </div>

        <div class="stats-grid">
            <div class="card"><div class="label">Total</div><div class="value" id="total">0</div></div>
            <div class="card"><div class="label">Admitted</div><div class="value ok" id="admitted">0</div></div>
            <div class="card"><div class="label">Rejected (421)</div><div class="value bad" id="rejected">0</div></div>
            <div class="card"><div class="label">Consumers</div><div class="value" id="consumers">0</div></div>
        </div>

        <div class="card">
            <h2>Rejections by scope</h2>
            <table><tbody id="scopes"></tbody></table>
        </div>

        <div class="card">
            <h2>Top consumers</h2>
            <table>
                <thead><tr><th>Consumer</th><th>Total</th><th>Admitted</th><th>Rejected</th><th>Last seen</th></tr></thead>
                <tbody id="top"></tbody>
            </table>
        </div>

        <div class="card">
            <h2>Buckets (gateway filter)</h2>
            <table>
                <thead><tr><th>Key</th><th>Remaining</th><th>Capacity</th><th></th></tr></thead>
                <tbody id="buckets"></tbody>
            </table>
        </div>
    </div>

    <script>
        const empty = (cols) => '<tr><td colspan="' + cols + '" style="color:#999">Nothing yet</td></tr>';

        async function refresh() {
            try {
                const [m, l] = await Promise.all([
                    fetch('/admin/metrics').then(r => r.json()),
                    fetch('/admin/limits').then(r => r.json()),
                ]);
                render(m, l);
            } catch (error) {
                console.error('refresh failed:', error);
            }
        }

        function render(m, l) {
            document.getElementById('total').textContent = m.total_requests.toLocaleString();
            document.getElementById('admitted').textContent = m.admitted_requests.toLocaleString();
            document.getElementById('rejected').textContent = m.rejected_requests.toLocaleString();
            document.getElementById('consumers').textContent = m.unique_consumers.toLocaleString();

            const scopes = Object.entries(m.rejected_by_scope || {});
            document.getElementById('scopes').innerHTML = scopes.length
                ? scopes.map(([s, n]) => '<tr><td>' + s + '</td><td>' + n + '</td></tr>').join('')
                : empty(2);

            const top = m.top_consumers || [];
            document.getElementById('top').innerHTML = top.length
                ? top.map(c => '<tr><td><strong>' + c.consumer_id + '</strong></td><td>' + c.total_requests +
                    '</td><td>' + c.admitted_requests + '</td><td>' + c.rejected_requests +
                    '</td><td>' + new Date(c.last_request_at).toLocaleTimeString() + '</td></tr>').join('')
                : empty(5);

            const buckets = l.buckets || [];
            document.getElementById('buckets').innerHTML = buckets.length
                ? buckets.map(b => '<tr><td>' + b.key + '</td><td>' + b.remaining + '</td><td>' + b.capacity +
                    '</td><td style="width:30%"><div class="bar"><div style="width:' +
                    (100 * b.remaining / b.capacity) + '%"></div></div></td></tr>').join('')
                : empty(4);
        }

        refresh();
        setInterval(refresh, 2000);
    </script>
</body>
</html>`
