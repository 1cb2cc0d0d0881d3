package redis

const (
	// setRecordScript atomically writes a daily record, its week bucket
	// entry and the week index
	setRecordScript = `
local day_key = KEYS[1]      -- snuskoll:day:{date}
local week_key = KEYS[2]     -- snuskoll:week:{weekKey}
local week_index = KEYS[3]   -- snuskoll:weeks

local date = ARGV[1]
local count = ARGV[2]
local limit = ARGV[3]
local longest_pause = ARGV[4]
local current_session_start = ARGV[5]
local last_session_end = ARGV[6]
local next_allowed_at = ARGV[7]
local week = ARGV[8]
local entry = ARGV[9]

-- Replace the day hash; empty timestamps mean "not set"
redis.call('HSET', day_key,
  'date', date,
  'count', count,
  'limit', limit,
  'longest_pause', longest_pause,
  'current_session_start', current_session_start,
  'last_session_end', last_session_end,
  'next_allowed_at', next_allowed_at
)

-- Mirror into the week bucket
redis.call('HSET', week_key, date, entry)
redis.call('SADD', week_index, week)

return 'OK'
`
)
